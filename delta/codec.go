// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"encoding/binary"
	"io"
	"math"

	"go.chromium.org/luci/common/errors"
)

// ErrMalformedDelta is returned by Decoder when the delta stream ends in the
// middle of a frame. It is always fatal to decoding.
var ErrMalformedDelta = errors.New("malformed delta stream")

// The wire format is a sequence of variable-length frames, read until end of
// stream. Every frame opens with a 2-byte big-endian marker: zero means the
// next 8 bytes are a big-endian block index (a copy operation), anything
// else is the byte length of an immediately following literal payload.
// A zero-length literal has no encoding and is simply omitted.
const copyMarker = 0x0000

// Encoder serializes operations to the delta wire format.
type Encoder struct {
	w   io.Writer
	buf [10]byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write serializes one operation. Empty literals are dropped; literals
// longer than 65535 bytes cannot be framed and are an error (the Generator's
// max literal run already keeps them under the limit).
func (e *Encoder) Write(op Op) error {
	switch op.Kind {
	case OpCopy:
		binary.BigEndian.PutUint16(e.buf[0:2], copyMarker)
		binary.BigEndian.PutUint64(e.buf[2:10], op.Index)
		if _, err := e.w.Write(e.buf[:10]); err != nil {
			return errors.Annotate(err, "writing copy frame").Err()
		}
		return nil
	case OpLiteral:
		if len(op.Data) == 0 {
			return nil
		}
		if len(op.Data) > math.MaxUint16 {
			return errors.Reason("literal run of %d bytes does not fit the 2-byte frame length", len(op.Data)).Err()
		}
		binary.BigEndian.PutUint16(e.buf[0:2], uint16(len(op.Data)))
		if _, err := e.w.Write(e.buf[:2]); err != nil {
			return errors.Annotate(err, "writing literal frame").Err()
		}
		if _, err := e.w.Write(op.Data); err != nil {
			return errors.Annotate(err, "writing literal payload").Err()
		}
		return nil
	}
	return errors.Reason("unknown operation kind 0x%x", byte(op.Kind)).Err()
}

// Encode drains src into w, one frame per operation. With a Generator as src
// this pipelines generation and serialization: each operation is framed the
// moment it is produced.
func Encode(w io.Writer, src OpSource) error {
	enc := NewEncoder(w)
	for {
		op, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Write(op); err != nil {
			return err
		}
	}
}

// Decoder lazily parses operations from the delta wire format. It is the
// inverse of Encoder.
type Decoder struct {
	r   io.Reader
	buf [10]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next operation. It returns io.EOF at a clean end of
// stream and ErrMalformedDelta (annotated) if the stream ends inside
// a frame.
func (d *Decoder) Next() (Op, error) {
	if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
		switch err {
		case io.EOF:
			return Op{}, io.EOF
		case io.ErrUnexpectedEOF:
			return Op{}, errors.Annotate(ErrMalformedDelta, "stream ends inside a frame marker").Err()
		}
		return Op{}, errors.Annotate(err, "reading frame marker").Err()
	}

	marker := binary.BigEndian.Uint16(d.buf[0:2])
	if marker == copyMarker {
		if _, err := io.ReadFull(d.r, d.buf[2:10]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Op{}, errors.Annotate(ErrMalformedDelta, "stream ends inside a block index").Err()
			}
			return Op{}, errors.Annotate(err, "reading block index").Err()
		}
		return Op{Kind: OpCopy, Index: binary.BigEndian.Uint64(d.buf[2:10])}, nil
	}

	data := make([]byte, marker)
	if _, err := io.ReadFull(d.r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Op{}, errors.Annotate(ErrMalformedDelta, "stream ends inside a %d byte literal", marker).Err()
		}
		return Op{}, errors.Annotate(err, "reading literal payload").Err()
	}
	return Op{Kind: OpLiteral, Data: data}, nil
}
