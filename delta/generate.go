// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"io"

	"go.chromium.org/luci/common/errors"
)

// Generator describes a target stream as operations over a signed base
// stream. It makes a single forward pass over the target and emits
// operations lazily from Next, holding no more than a window plus one
// pending literal run in memory.
//
// It maintains a sliding window over the target. After a block match (and at
// the start) the window is refilled wholesale and the weak checksum computed
// from scratch; after a mismatch the window slides one byte, the checksum
// rolls in O(1), and the displaced byte joins the pending literal run. Once
// the target is exhausted the window keeps rolling against synthetic zero
// bytes until only the stream's true tail remains unflushed, which is then
// emitted as a final literal.
type Generator struct {
	target io.Reader
	index  *SignatureIndex
	opts   optionData

	rs     *Rollsum
	window []byte
	off    int   // window bytes before off already joined the literal run
	lit    []byte
	read   int64 // total bytes consumed from target
	tail   int   // length of the true tail, valid once eof is set

	queue  []Op
	eof    bool
	resync bool
	done   bool
}

// NewGenerator returns a Generator over target. The index must have been
// built with the same block size and digest scheme options. A nil or empty
// index is fine; every target byte then lands in literal runs.
func NewGenerator(target io.Reader, index *SignatureIndex, options ...Option) (*Generator, error) {
	o, err := makeOptions(options)
	if err != nil {
		return nil, err
	}
	return &Generator{
		target: target,
		index:  index,
		opts:   o,
		rs:     NewRollsum(o.blockSize),
		resync: true,
	}, nil
}

// Next returns the next operation, or io.EOF after the final one. Literal
// payloads are owned by the caller. I/O errors from the target abort the
// sequence.
func (g *Generator) Next() (Op, error) {
	for {
		if len(g.queue) > 0 {
			op := g.queue[0]
			g.queue = g.queue[1:]
			return op, nil
		}
		if g.done {
			return Op{}, io.EOF
		}
		if err := g.step(); err != nil {
			return Op{}, err
		}
	}
}

// step advances the state machine until it has queued at least one operation
// or finished. One call handles exactly one match test.
func (g *Generator) step() error {
	if g.resync {
		if err := g.refill(); err != nil {
			return err
		}
		g.resync = false
	}

	if idx, ok := g.match(); ok {
		g.flushLiteral()
		g.queue = append(g.queue, Op{Kind: OpCopy, Index: idx})
		if g.eof {
			g.done = true
		} else {
			g.resync = true
		}
		return nil
	}

	// Mismatch. Pull one more byte; at end of stream roll a synthetic zero
	// instead, and note how long the true tail is.
	var added byte
	if !g.eof {
		switch b, err := g.readByte(); {
		case err == io.EOF:
			g.eof = true
			g.tail = int(g.read % int64(g.opts.blockSize))
		case err != nil:
			return err
		default:
			added = b
			g.window = append(g.window, b)
		}
	}

	if g.eof && len(g.window)-g.off <= g.tail {
		// Nothing can match past this point. Flush the pending run, then the
		// unflushed remainder of the window as one final literal.
		g.flushLiteral()
		if rest := g.window[g.off:]; len(rest) > 0 {
			g.queue = append(g.queue, Op{Kind: OpLiteral, Data: append([]byte(nil), rest...)})
		}
		g.done = true
		return nil
	}

	old := g.window[g.off]
	g.off++
	g.rs.Roll(old, added)

	// Reclaim the consumed prefix so a long unmatched run doesn't grow the
	// window past two blocks.
	if g.off >= g.opts.blockSize {
		n := copy(g.window, g.window[g.off:])
		g.window = g.window[:n]
		g.off = 0
	}

	if len(g.lit) >= g.opts.maxLiteral {
		g.flushLiteral()
	}
	g.lit = append(g.lit, old)
	return nil
}

// refill replaces the window with up to one block of fresh target bytes and
// recomputes the weak checksum from scratch.
func (g *Generator) refill() error {
	buf := make([]byte, g.opts.blockSize)
	n, err := io.ReadFull(g.target, buf)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return errors.Annotate(err, "reading target at offset %d", g.read).Err()
	}
	g.read += int64(n)
	g.window = buf[:n]
	g.off = 0
	g.rs.Write(g.window)
	return nil
}

func (g *Generator) readByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(g.target, one[:]); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, errors.Annotate(err, "reading target at offset %d", g.read).Err()
	}
	g.read++
	return one[0], nil
}

func (g *Generator) match() (uint64, bool) {
	if g.index == nil || g.index.Len() == 0 {
		return 0, false
	}
	return g.index.Lookup(g.rs.Sum32(), func() []byte {
		return g.opts.scheme.digest(g.window[g.off:])
	})
}

func (g *Generator) flushLiteral() {
	if len(g.lit) > 0 {
		g.queue = append(g.queue, Op{Kind: OpLiteral, Data: g.lit})
		g.lit = nil
	}
}
