// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"math"

	"go.chromium.org/luci/common/errors"
)

// DefaultBlockSize is the block size used when WithBlockSize is not given.
// It is also the default cap on literal run length.
const DefaultBlockSize = 4096

type optionData struct {
	blockSize  int
	maxLiteral int
	scheme     DigestScheme
	lenient    bool
}

// Option configures a delta session. The same blockSize and digest scheme
// must be supplied to BuildSignatures, the Generator, and the Patcher of one
// diff/patch session; none of them are recorded on the wire.
type Option func(*optionData)

// WithBlockSize sets the base block size in bytes.
func WithBlockSize(n int) Option {
	return func(o *optionData) {
		o.blockSize = n
	}
}

// WithMaxLiteral caps the length of a single literal run. Longer runs are
// split across several operations. The cap bounds generator memory and must
// fit the wire format's 2-byte length field.
func WithMaxLiteral(n int) Option {
	return func(o *optionData) {
		o.maxLiteral = n
	}
}

// WithDigest selects the strong digest scheme.
func WithDigest(d DigestScheme) Option {
	return func(o *optionData) {
		o.scheme = d
	}
}

// WithLenient makes the Patcher pad unsatisfiable block references with zero
// bytes instead of failing. Useful for partial recovery from a damaged base.
func WithLenient(v bool) Option {
	return func(o *optionData) {
		o.lenient = v
	}
}

func makeOptions(options []Option) (optionData, error) {
	o := optionData{
		blockSize:  DefaultBlockSize,
		maxLiteral: DefaultBlockSize,
		scheme:     DigestMD5,
	}
	for _, opt := range options {
		opt(&o)
	}
	if o.blockSize <= 0 {
		return o, errors.Reason("block size %d is not positive", o.blockSize).Err()
	}
	if o.maxLiteral <= 0 || o.maxLiteral > math.MaxUint16 {
		return o, errors.Reason("max literal run %d does not fit the 2-byte frame length", o.maxLiteral).Err()
	}
	if err := o.scheme.Valid(); err != nil {
		return o, err
	}
	return o, nil
}
