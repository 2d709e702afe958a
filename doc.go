// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package backup implements a periodic backup archiver. Each run packs the
// selected directory trees into a single-file archive named after the host
// and the current date, and rotation keeps a bounded number of archives per
// target directory.
//
// To avoid storing a full copy for every run, an archive may instead be
// stored as a binary delta against the first archive of the same month. The
// delta engine (package delta) is a from-scratch implementation of the rsync
// rolling-checksum algorithm: the older archive is split into fixed-size
// blocks, each described by a cheap rolling checksum and a strong digest, and
// the new archive is then expressed as a sequence of block references plus
// literal runs for the bytes that changed.
//
// The archive container (package archive) has a fairly basic format:
//   - file magic header ("BAK" + byte(VERSION)). VERSION current == 1.
//   - block_header + manifest
//   - block_header + archive_data
//   - checksum
//
// block_headers define the compression type and length of the subsequent
// block. The manifest is a msgpack-encoded list of entries; archive_data is
// all of the file data noted in the manifest, concatenated and compressed.
// The trailing checksum indicates the type of checksum, followed by the bytes
// of the checksum, followed by the length of the checksum (as a single byte),
// and covers all preceding bytes of the archive. The length at the end allows
// the checksum to be validated simply by reading from the end of the archive
// without parsing it.
//
// Delta files sit next to the archives they replace, with a ".diff" suffix,
// and use the wire format described in package delta.
package backup
