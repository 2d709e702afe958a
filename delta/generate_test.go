// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"bytes"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// generate drains a Generator built over target against base's signatures.
func generate(base, target []byte, options ...Option) []Op {
	sigs, err := BuildSignatures(bytes.NewReader(base), options...)
	So(err, ShouldBeNil)
	gen, err := NewGenerator(bytes.NewReader(target), NewSignatureIndex(sigs), options...)
	So(err, ShouldBeNil)

	var ops []Op
	for {
		op, err := gen.Next()
		if err == io.EOF {
			return ops
		}
		So(err, ShouldBeNil)
		ops = append(ops, op)
	}
}

// roundTrip runs the full pipeline: generate, encode, decode, apply.
func roundTrip(base, target []byte, options ...Option) []byte {
	sigs, err := BuildSignatures(bytes.NewReader(base), options...)
	So(err, ShouldBeNil)
	gen, err := NewGenerator(bytes.NewReader(target), NewSignatureIndex(sigs), options...)
	So(err, ShouldBeNil)

	encoded := &bytes.Buffer{}
	So(Encode(encoded, gen), ShouldBeNil)

	p, err := NewPatcher(options...)
	So(err, ShouldBeNil)
	out := &bytes.Buffer{}
	So(p.Apply(bytes.NewReader(base), NewDecoder(encoded), out), ShouldBeNil)
	return out.Bytes()
}

func kinds(ops []Op) []OpKind {
	ks := make([]OpKind, len(ops))
	for i, op := range ops {
		ks[i] = op.Kind
	}
	return ks
}

func literalTotal(ops []Op) int {
	n := 0
	for _, op := range ops {
		if op.Kind == OpLiteral {
			n += len(op.Data)
		}
	}
	return n
}

func TestGenerator(t *testing.T) {
	t.Parallel()

	Convey("Generator", t, func() {
		Convey("empty base and target", func() {
			So(generate(nil, nil), ShouldBeEmpty)
			So(roundTrip(nil, nil), ShouldBeEmpty)
		})

		Convey("empty target over a signed base", func() {
			So(generate(testPattern(100), nil, WithBlockSize(16)), ShouldBeEmpty)
		})

		Convey("identical streams become copies", func() {
			base := testPattern(64) // four distinct blocks, no tail
			ops := generate(base, base, WithBlockSize(16))
			So(kinds(ops), ShouldResemble, []OpKind{OpCopy, OpCopy, OpCopy, OpCopy})
			So(ops[0].Index, ShouldEqual, 0)
			So(ops[3].Index, ShouldEqual, 3)
			So(roundTrip(base, base, WithBlockSize(16)), ShouldResemble, base)
		})

		Convey("duplicate base blocks resolve to the first index", func() {
			block := testPattern(16)
			base := append(append([]byte{}, block...), block...)
			ops := generate(base, base, WithBlockSize(16))
			So(kinds(ops), ShouldResemble, []OpKind{OpCopy, OpCopy})
			So(ops[0].Index, ShouldEqual, 0)
			So(ops[1].Index, ShouldEqual, 0)
			So(roundTrip(base, base, WithBlockSize(16)), ShouldResemble, base)
		})

		Convey("unmatchable target becomes literals", func() {
			target := testPattern(300)
			ops := generate(nil, target, WithBlockSize(64), WithMaxLiteral(100))
			for _, op := range ops {
				So(op.Kind, ShouldEqual, OpLiteral)
				So(len(op.Data), ShouldBeLessThanOrEqualTo, 100)
			}
			var got []byte
			for _, op := range ops {
				got = append(got, op.Data...)
			}
			So(got, ShouldResemble, target)
		})

		Convey("single byte mutation stays local", func() {
			const blockSize = 4096
			base := testPattern(5*blockSize + 123)
			target := append([]byte(nil), base...)
			target[2*blockSize+100] ^= 0xff

			ops := generate(base, target)
			So(kinds(ops), ShouldResemble, []OpKind{
				OpCopy, OpCopy, OpLiteral, OpCopy, OpCopy, OpCopy,
			})
			So(literalTotal(ops), ShouldEqual, blockSize)
			So(ops[0].Index, ShouldEqual, 0)
			So(ops[1].Index, ShouldEqual, 1)
			So(ops[3].Index, ShouldEqual, 3)
			So(ops[4].Index, ShouldEqual, 4)
			So(ops[5].Index, ShouldEqual, 5)
			So(roundTrip(base, target), ShouldResemble, target)
		})

		Convey("matches at unaligned offsets", func() {
			const blockSize = 4096
			block := testPattern(blockSize)
			target := append(append(append([]byte{}, testPattern(100)...), block...), testPattern(50)...)

			ops := generate(block, target)
			So(kinds(ops), ShouldResemble, []OpKind{OpLiteral, OpCopy, OpLiteral})
			So(len(ops[0].Data), ShouldEqual, 100)
			So(ops[1].Index, ShouldEqual, 0)
			So(roundTrip(block, target), ShouldResemble, target)
		})

		Convey("short unmatched target ends as one literal", func() {
			target := []byte("tiny")
			ops := generate(testPattern(64), target, WithBlockSize(16))
			So(kinds(ops), ShouldResemble, []OpKind{OpLiteral})
			So(ops[0].Data, ShouldResemble, target)
		})

		Convey("prepended data shifts every block off alignment", func() {
			const blockSize = 256
			base := testPattern(8 * blockSize)
			target := append(append([]byte{}, []byte("header")...), base...)
			ops := generate(base, target, WithBlockSize(blockSize))
			So(literalTotal(ops), ShouldBeLessThanOrEqualTo, blockSize)
			So(roundTrip(base, target, WithBlockSize(blockSize)), ShouldResemble, target)
		})

		Convey("rejects an oversized literal cap", func() {
			_, err := NewGenerator(bytes.NewReader(nil), nil, WithMaxLiteral(1<<16))
			So(err, ShouldNotBeNil)
		})
	})
}
