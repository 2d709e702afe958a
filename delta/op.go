// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import "io"

// OpKind discriminates the two delta operation variants.
type OpKind byte

// The operation variants. Replaying, in order, the referenced base block for
// every OpCopy and the payload of every OpLiteral reproduces the target
// stream byte for byte.
const (
	// OpCopy emits the base stream's block at Index.
	OpCopy OpKind = iota + 1
	// OpLiteral emits Data verbatim; those bytes had no match in the base.
	OpLiteral
)

// Op is a single delta operation.
type Op struct {
	Kind  OpKind
	Index uint64 // base block index, OpCopy only
	Data  []byte // literal payload, OpLiteral only
}

// OpSource is a lazy sequence of operations. Next returns io.EOF after the
// final operation. Generator and Decoder both implement it, so deltas can be
// encoded straight off a generator and applied straight off a decoder
// without materializing the sequence.
type OpSource interface {
	Next() (Op, error)
}

// Ops adapts an in-memory operation slice to an OpSource.
func Ops(ops []Op) OpSource {
	return &opSlice{ops: ops}
}

type opSlice struct {
	ops []Op
}

func (s *opSlice) Next() (Op, error) {
	if len(s.ops) == 0 {
		return Op{}, io.EOF
	}
	op := s.ops[0]
	s.ops = s.ops[1:]
	return op, nil
}
