// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package archive

import (
	"bytes"
	"fmt"
	"hash"
	"io"

	"go.chromium.org/luci/common/errors"

	"github.com/zhen-huan-hu/backup/archive/arcdata"
)

type readSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Archive represents an Open'd backup file.
type Archive struct {
	// csr covers the whole checksummed range, data decompresses the data
	// block layered on top of it. Verification happens when csr is closed,
	// after the full range has been read through it.
	csr  io.ReadCloser
	data io.ReadCloser

	didClose bool

	rawManifestBuf *bytes.Buffer
	Manifest       *arcdata.Manifest

	opts openOptionData
}

// RawManifest returns the raw bytes for the compressed manifest block if
// WithRawManifest was provided.
func (a *Archive) RawManifest() ([]byte, error) {
	if a.rawManifestBuf != nil {
		return a.rawManifestBuf.Bytes(), nil
	}
	return nil, errors.New("must supply WithRawManifest to Open to use RawManifest")
}

// Close closes the archive and the underlying reader. If UnpackTo hasn't been
// called, then this will also verify the checksum.
func (a *Archive) Close() error {
	if a.didClose {
		return nil
	}
	a.didClose = true

	if a.opts.verifyState == VerifyEarly || a.opts.verifyState == VerifyNever {
		// either already verified, or don't care
		a.data.Close()
		return a.csr.Close()
	}

	// otherwise we need to read to the end to check the checksum.
	return a.finishVerify()
}

// finishVerify consumes the rest of the checksummed range and closes csr,
// which compares the accumulated hash against the trailer.
func (a *Archive) finishVerify() error {
	a.data.Close()
	if _, err := io.Copy(io.Discard, a.csr); err != nil {
		return err
	}
	return a.csr.Close()
}

// VerifyStateEnum allows you to control how Open will verify the package
// integrity. It defaults to VerifyLate.
type VerifyStateEnum int

// Valid values of VerifyStateEnum
const (
	// Checksum verification will occur when calling Archive.Close()
	VerifyLate VerifyStateEnum = iota

	// Checksum verification will occur when calling Open()
	VerifyEarly

	// Checksum verification will be skipped.
	VerifyNever
)

type openOptionData struct {
	verifyState      VerifyStateEnum
	rawManifest      bool
	unpackBufferSize int
}

func (o openOptionData) setUpReader(r readSeekCloser) (ret io.ReadCloser, err error) {
	switch o.verifyState {
	case VerifyLate:
		ret, _, err = arcdata.ChecksumReader(r)

	case VerifyNever:
		ret = r

	case VerifyEarly:
		ret = io.ReadCloser(r)

		var h hash.Hash
		var nominalEnd int64
		var nominalCsum []byte
		_, h, nominalEnd, nominalCsum, err = arcdata.ParseTrailer(r)
		if err != nil {
			err = errors.Annotate(err, "early checksum setup").Err()
			return
		}
		var curLocation int64
		if curLocation, err = r.Seek(0, io.SeekCurrent); err != nil {
			err = errors.Annotate(err, "early checksum seek").Err()
			return
		}
		if _, err = io.Copy(h, io.LimitReader(r, nominalEnd-curLocation)); err != nil {
			err = errors.Annotate(err, "early checksum calculation").Err()
			return
		}
		if !bytes.Equal(nominalCsum, h.Sum(nil)) {
			err = errors.New("early checksum mismatch")
			return
		}
		if _, err = r.Seek(curLocation, io.SeekStart); err != nil {
			err = errors.Annotate(err, "early checksum reset").Err()
			return
		}

	default:
		panic(fmt.Sprintf("unknown verification state 0x%x", o.verifyState))
	}
	return
}

// OpenOption functions can be supplied to the Open function
type OpenOption func(*openOptionData)

// WithVerification allows you to dictate how the checksum in the archive is
// verified.
func WithVerification(val VerifyStateEnum) OpenOption {
	return func(o *openOptionData) {
		o.verifyState = val
	}
}

// WithRawManifest is an OpenOption which instructs Open to duplicate the raw
// manifest block. This can be useful for storing the manifest on disk next to
// the unpacked archive, for example.
func WithRawManifest(val bool) OpenOption {
	return func(o *openOptionData) {
		o.rawManifest = val
	}
}

// WithUnpackBufferSize is an OpenOption factory which indicates the number of
// bytes that UnpackTo will attempt to decompress ahead of time. Default if
// unspecified is 16MB.
func WithUnpackBufferSize(size int) OpenOption {
	return func(o *openOptionData) {
		o.unpackBufferSize = size
	}
}

// Open opens a backup archive from the given reader.
//
// It will read and validate the manifest, and open the archive data block but
// not read any of the data.
//
// To get a positive confirmation for the integrity of the archive, you must
// call Close() and observe the error (or you can use VerifyEarly to get
// a preemptive integrity check).
func Open(r readSeekCloser, options ...OpenOption) (ret *Archive, err error) {
	opts := openOptionData{
		unpackBufferSize: 16 * 1024 * 1024, // 16MB
	}
	for _, o := range options {
		o(&opts)
	}

	openedReader, err := opts.setUpReader(r)
	if err != nil {
		return
	}

	var version byte
	if version, err = arcdata.ReadMagic(openedReader); err != nil {
		err = errors.Annotate(err, "checking magic").Err()
		return
	}
	if version != arcdata.Version {
		err = errors.Reason("unsupported version %d", version).Err()
		return
	}

	ar := &Archive{
		csr:  openedReader,
		opts: opts,
	}

	manifestReader := io.Reader(openedReader)
	if opts.rawManifest {
		ar.rawManifestBuf = &bytes.Buffer{}
		manifestReader = io.TeeReader(openedReader, ar.rawManifestBuf)
	}

	if ar.Manifest, err = arcdata.ReadManifest(manifestReader); err != nil {
		err = errors.Annotate(err, "reading manifest").Err()
		return
	}

	ar.data, err = arcdata.BlockReader(openedReader)
	if err != nil {
		err = errors.Annotate(err, "opening data block").Err()
		return
	}

	ret = ar
	return
}
