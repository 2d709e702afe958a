// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	. "go.chromium.org/luci/common/testing/assertions"

	"github.com/zhen-huan-hu/backup/archive/arcdata"
)

func f(path string, size uint64) *arcdata.Entry {
	return &arcdata.Entry{Path: path, Type: arcdata.EntryFile, Size: size}
}

func d(path string) *arcdata.Entry {
	return &arcdata.Entry{Path: path, Type: arcdata.EntryDir}
}

type nullWriteCloser struct {
	io.Writer
}

func (nullWriteCloser) Close() error { return nil }

type nullReadSeekCloser struct {
	io.ReadSeeker
}

func (nullReadSeekCloser) Close() error { return nil }

func TestOpen(tst *testing.T) {
	tst.Parallel()

	mockManifest := &arcdata.Manifest{Entries: []*arcdata.Entry{
		f("someFile", 13),
		f("someOtherFile", 18),
		d("tree"),
		f("tree/subFile", 17),
		f("lastFile", 13),
	}}

	mockArchive := &bytes.Buffer{}
	csumWriter := arcdata.ChecksumBLAKE2b.Writer(nullWriteCloser{mockArchive})

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(arcdata.WriteMagic(csumWriter))
	must(arcdata.WriteManifest(csumWriter, mockManifest, arcdata.CompressionFlate, 9))
	expectedManifest := make([]byte, mockArchive.Len()-4) // minus magic
	copy(expectedManifest, mockArchive.Bytes()[4:])
	bw, err := arcdata.BlockWriter(csumWriter, arcdata.CompressionFlate, 9)
	must(err)
	_, err = bw.Write([]byte("someFile data"))
	must(err)
	_, err = bw.Write([]byte("someOtherFile data"))
	must(err)
	_, err = bw.Write([]byte("tree/subFile data"))
	must(err)
	_, err = bw.Write([]byte("lastFile data"))
	must(err)
	must(bw.Close())
	must(csumWriter.Close())

	Convey("Open", tst, func() {
		Convey("standard", func() {
			ar, err := Open(nullReadSeekCloser{bytes.NewReader(mockArchive.Bytes())})
			So(err, ShouldBeNil)
			So(ar.Manifest, ShouldResemble, mockManifest)
			_, err = ar.RawManifest()
			So(err, ShouldErrLike, "must supply WithRawManifest to Open to use RawManifest")
			So(ar.Close(), ShouldBeNil)
		})

		Convey("VerifyEarly", func() {
			ar, err := Open(nullReadSeekCloser{bytes.NewReader(mockArchive.Bytes())}, WithVerification(VerifyEarly))
			So(err, ShouldBeNil)
			So(ar.Manifest, ShouldResemble, mockManifest)
			So(ar.Close(), ShouldBeNil)
		})

		Convey("VerifyLate catches corruption", func() {
			newBytes := make([]byte, mockArchive.Len())
			copy(newBytes, mockArchive.Bytes())
			newBytes[len(newBytes)-10] = 0 // break the checksum

			ar, err := Open(nullReadSeekCloser{bytes.NewReader(newBytes)})
			So(err, ShouldBeNil)
			So(ar.Manifest, ShouldResemble, mockManifest)
			So(ar.Close(), ShouldErrLike, "mismatched checksum")
		})

		Convey("VerifyNever", func() {
			newBytes := make([]byte, mockArchive.Len())
			copy(newBytes, mockArchive.Bytes())
			newBytes[len(newBytes)-10] = 0  // break the checksum
			newBytes[len(newBytes)-1] = 100 // break the 'seekback' value

			ar, err := Open(nullReadSeekCloser{bytes.NewReader(newBytes)}, WithVerification(VerifyNever))
			So(err, ShouldBeNil)
			So(ar.Manifest, ShouldResemble, mockManifest)
			So(ar.Close(), ShouldBeNil)
		})

		Convey("CacheRawManifest", func() {
			ar, err := Open(nullReadSeekCloser{bytes.NewReader(mockArchive.Bytes())}, WithRawManifest(true))
			So(err, ShouldBeNil)
			So(ar.Manifest, ShouldResemble, mockManifest)
			data, err := ar.RawManifest()
			So(err, ShouldBeNil)
			So(data, ShouldResemble, expectedManifest)
			So(ar.Close(), ShouldBeNil)
		})

		Convey("and unpack", func() {
			ar, err := Open(nullReadSeekCloser{bytes.NewReader(mockArchive.Bytes())})
			So(err, ShouldBeNil)

			dirName, err := os.MkdirTemp("", "")
			So(err, ShouldBeNil)
			defer os.RemoveAll(dirName)

			So(ar.UnpackTo(context.Background(), dirName), ShouldBeNil)

			hasContent := func(path interface{}, expect ...interface{}) string {
				data, err := os.ReadFile(filepath.Join(dirName, path.(string)))
				if err != nil {
					return err.Error()
				}
				return ShouldResemble(string(data), expect[0].(string))
			}

			So("someFile", hasContent, "someFile data")
			So("someOtherFile", hasContent, "someOtherFile data")
			So("tree/subFile", hasContent, "tree/subFile data")
			So("lastFile", hasContent, "lastFile data")
		})

		Convey("unpack requires an empty root", func() {
			ar, err := Open(nullReadSeekCloser{bytes.NewReader(mockArchive.Bytes())})
			So(err, ShouldBeNil)
			defer ar.Close()

			dirName, err := os.MkdirTemp("", "")
			So(err, ShouldBeNil)
			defer os.RemoveAll(dirName)
			So(os.WriteFile(filepath.Join(dirName, "junk"), []byte("x"), 0666), ShouldBeNil)

			So(ar.UnpackTo(context.Background(), dirName), ShouldErrLike, "dir not empty")
		})
	})
}
