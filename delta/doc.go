// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package delta implements the rsync rolling-checksum algorithm for
// describing one byte stream (the target) in terms of another (the base).
//
// The base stream is partitioned into fixed-size blocks, each summarized by
// a weak rolling checksum and a strong digest (BuildSignatures). A Generator
// then slides a window over the target one byte at a time: wherever the
// window's checksums match a base block, it emits a block reference,
// otherwise the displaced bytes accumulate into literal runs. The resulting
// operation sequence serializes to a compact binary frame format
// (Encoder/Decoder) and replays against a seekable copy of the base to
// reconstruct the target (Patcher).
//
// Both sides of a diff must agree on the block size and digest scheme out of
// band; neither is recorded in the delta stream.
package delta
