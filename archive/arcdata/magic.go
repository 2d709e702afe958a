// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package arcdata

import (
	"io"

	"go.chromium.org/luci/common/errors"
)

// Magic is the magic bytes which appear at the beginning of an archive.
const Magic = "BAK"

// Version is the version of the archive format.
const Version byte = 1

var magicVer []byte

func init() {
	magicVer = []byte(Magic + string(Version))
}

// WriteMagic writes BAK+VERSION to the writer.
func WriteMagic(w io.Writer) error {
	_, err := w.Write(magicVer)
	return err
}

// ReadMagic reads magic from the reader and checks that it's equal to BAK,
// and ensures that the file version is <= Version.
func ReadMagic(r io.Reader) (version byte, err error) {
	buf := make([]byte, 4)
	if _, err = io.ReadFull(r, buf); err != nil {
		return
	}

	sBuf := string(buf[:3])
	if Magic != sBuf {
		err = errors.Reason("bad magic: %q", sBuf).Err()
		return
	}

	version = buf[3]
	if version > Version {
		err = errors.Reason("bad version: %d > %d", version, Version).Err()
		return
	}

	return
}
