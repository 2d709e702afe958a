// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package arcdata

import (
	"compress/flate"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"go.chromium.org/luci/common/errors"
)

// CompressionScheme indicates the type of compression used in a block, as
// indicated by that block's BlockHeader.
type CompressionScheme byte

// These are the currently supported compression schemes. Snappy and Zstd
// ignore the level parameter; Zstd maps it onto the nearest encoder level.
const (
	CompressionNone CompressionScheme = iota + 1
	CompressionFlate
	CompressionSnappy
	CompressionZstd
)

// Writer returns a new compressing writer for the given scheme.
func (c CompressionScheme) Writer(w io.Writer, level int) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return writeCloseHook{w, nil}, nil
	case CompressionFlate:
		return flate.NewWriter(w, level)
	case CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	return nil, c.Valid()
}

// Reader returns a new decompressing reader for the given scheme.
func (c CompressionScheme) Reader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return readCloseHook{r, nil}, nil
	case CompressionFlate:
		return flate.NewReader(r), nil
	case CompressionSnappy:
		return readCloseHook{snappy.NewReader(r), nil}, nil
	case CompressionZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	}
	return nil, c.Valid()
}

// Valid returns a nil err iff this CompressionScheme is valid.
func (c CompressionScheme) Valid() error {
	switch c {
	case CompressionNone, CompressionFlate, CompressionSnappy, CompressionZstd:
		return nil
	}
	return errors.Reason("unknown compression scheme 0x%x", byte(c)).Err()
}
