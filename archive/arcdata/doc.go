// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package arcdata implements IO routines for reading and writing the chunks
// of the BAK archive format: the magic bytes, compressed blocks (manifest
// and archive data), and the trailing whole-file checksum.
package arcdata
