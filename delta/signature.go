// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"bytes"
	"io"

	"go.chromium.org/luci/common/errors"
)

// BlockSignature summarizes one block of a base stream. Its position in the
// slice returned by BuildSignatures is the block index that delta operations
// refer to; signatures carry no other identity.
type BlockSignature struct {
	Weak   uint32
	Strong []byte
}

// BuildSignatures reads base to exhaustion in consecutive, non-overlapping
// blocks and returns one signature per block, in stream order. The final
// block may be shorter than the block size and still gets a signature. An
// empty base yields no signatures.
func BuildSignatures(base io.Reader, options ...Option) ([]BlockSignature, error) {
	o, err := makeOptions(options)
	if err != nil {
		return nil, err
	}

	var sigs []BlockSignature
	rs := NewRollsum(o.blockSize)
	h := o.scheme.Hash()
	buf := make([]byte, o.blockSize)
	for {
		n, err := io.ReadFull(base, buf)
		if n > 0 {
			block := buf[:n]
			rs.Write(block)
			h.Reset()
			h.Write(block)
			sigs = append(sigs, BlockSignature{Weak: rs.Sum32(), Strong: h.Sum(nil)})
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return sigs, nil
		default:
			return nil, errors.Annotate(err, "reading base block %d", len(sigs)).Err()
		}
	}
}

type sigRef struct {
	strong []byte
	index  uint64
}

// SignatureIndex is a lookup structure over a signature list, keyed by weak
// checksum. Several blocks may share a weak value; candidates are kept in
// block order so that lookups resolve ties to the lowest index.
type SignatureIndex struct {
	byWeak map[uint32][]sigRef
	count  int
}

// NewSignatureIndex builds an index over sigs. The slice is not retained;
// strong digests are shared, not copied.
func NewSignatureIndex(sigs []BlockSignature) *SignatureIndex {
	x := &SignatureIndex{
		byWeak: make(map[uint32][]sigRef, len(sigs)),
		count:  len(sigs),
	}
	for i, s := range sigs {
		x.byWeak[s.Weak] = append(x.byWeak[s.Weak], sigRef{strong: s.Strong, index: uint64(i)})
	}
	return x
}

// Len returns the number of indexed signatures.
func (x *SignatureIndex) Len() int {
	return x.count
}

// Lookup returns the index of the first block, in block order, whose weak
// checksum is weak and whose strong digest equals strong(). The strong
// callback runs only when at least one weak candidate exists, so callers can
// defer the digest computation to it.
func (x *SignatureIndex) Lookup(weak uint32, strong func() []byte) (uint64, bool) {
	refs := x.byWeak[weak]
	if len(refs) == 0 {
		return 0, false
	}
	s := strong()
	for _, ref := range refs {
		if bytes.Equal(ref.strong, s) {
			return ref.index, true
		}
	}
	return 0, false
}
