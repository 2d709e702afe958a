// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"io"
	"math"

	"go.chromium.org/luci/common/errors"
)

// ErrTruncatedBase is returned by Patcher.Apply in strict mode when a copy
// operation references a block offset beyond the base stream's extent.
var ErrTruncatedBase = errors.New("truncated base stream")

// Patcher replays an operation sequence against a base stream to
// reconstruct the target stream it was generated from.
type Patcher struct {
	opts optionData
}

// NewPatcher returns a Patcher. The block size option must match the one the
// delta was generated with. WithLenient selects zero-padding over failure
// for unsatisfiable block references.
func NewPatcher(options ...Option) (*Patcher, error) {
	o, err := makeOptions(options)
	if err != nil {
		return nil, err
	}
	return &Patcher{opts: o}, nil
}

// Apply reads operations from src in order and writes the reconstructed
// stream to out. Copy operations seek base to index*blockSize and copy up to
// one block; a short final block is expected and copied as-is. Output is
// written strictly sequentially.
//
// Concurrent Apply calls against the same base need independent read
// cursors; seeks are not synchronized.
func (p *Patcher) Apply(base io.ReadSeeker, src OpSource, out io.Writer) error {
	buf := make([]byte, p.opts.blockSize)
	for {
		op, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch op.Kind {
		case OpCopy:
			if err := p.copyBlock(base, out, buf, op.Index); err != nil {
				return err
			}
		case OpLiteral:
			if _, err := out.Write(op.Data); err != nil {
				return errors.Annotate(err, "writing literal").Err()
			}
		default:
			return errors.Reason("unknown operation kind 0x%x", byte(op.Kind)).Err()
		}
	}
}

func (p *Patcher) copyBlock(base io.ReadSeeker, out io.Writer, buf []byte, index uint64) error {
	if index > math.MaxInt64/uint64(p.opts.blockSize) {
		return p.missingBlock(out, buf, index)
	}
	if _, err := base.Seek(int64(index)*int64(p.opts.blockSize), io.SeekStart); err != nil {
		return errors.Annotate(err, "seeking base to block %d", index).Err()
	}
	n, err := io.ReadFull(base, buf)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return errors.Annotate(err, "reading base block %d", index).Err()
	}
	if n == 0 {
		return p.missingBlock(out, buf, index)
	}
	if _, err := out.Write(buf[:n]); err != nil {
		return errors.Annotate(err, "writing base block %d", index).Err()
	}
	return nil
}

// missingBlock handles a copy operation the base cannot satisfy at all. In
// lenient mode the expected block length is written as zero bytes so that
// later operations still land at their intended offsets.
func (p *Patcher) missingBlock(out io.Writer, buf []byte, index uint64) error {
	if !p.opts.lenient {
		return errors.Annotate(ErrTruncatedBase, "block %d is beyond the base extent", index).Err()
	}
	for i := range buf {
		buf[i] = 0
	}
	if _, err := out.Write(buf); err != nil {
		return errors.Annotate(err, "writing zero block %d", index).Err()
	}
	return nil
}
