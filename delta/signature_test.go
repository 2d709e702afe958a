// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

import (
	"bytes"
	"crypto/md5"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSignatures(t *testing.T) {
	t.Parallel()

	Convey("BuildSignatures", t, func() {
		Convey("partitions into blocks, short final block included", func() {
			data := []byte("0123456789")
			sigs, err := BuildSignatures(bytes.NewReader(data), WithBlockSize(4))
			So(err, ShouldBeNil)
			So(sigs, ShouldHaveLength, 3)

			rs := NewRollsum(4)
			rs.Write([]byte("0123"))
			So(sigs[0].Weak, ShouldEqual, rs.Sum32())
			sum := md5.Sum([]byte("0123"))
			So(sigs[0].Strong, ShouldResemble, sum[:])

			rs.Write([]byte("89"))
			So(sigs[2].Weak, ShouldEqual, rs.Sum32())
			sum = md5.Sum([]byte("89"))
			So(sigs[2].Strong, ShouldResemble, sum[:])
		})

		Convey("empty base", func() {
			sigs, err := BuildSignatures(bytes.NewReader(nil), WithBlockSize(4))
			So(err, ShouldBeNil)
			So(sigs, ShouldBeEmpty)
		})

		Convey("alternate digest scheme", func() {
			data := testPattern(9)
			sigs, err := BuildSignatures(bytes.NewReader(data), WithBlockSize(4), WithDigest(DigestBLAKE2b))
			So(err, ShouldBeNil)
			So(sigs, ShouldHaveLength, 3)
			So(sigs[0].Strong, ShouldHaveLength, DigestBLAKE2b.Size())
		})
	})

	Convey("SignatureIndex", t, func() {
		data := append(append([]byte{}, []byte("samesame")...), []byte("tail")...)
		sigs, err := BuildSignatures(bytes.NewReader(data), WithBlockSize(4))
		So(err, ShouldBeNil)
		So(sigs, ShouldHaveLength, 3)
		// blocks 0 and 1 are both "same"
		So(sigs[0], ShouldResemble, sigs[1])

		idx := NewSignatureIndex(sigs)
		So(idx.Len(), ShouldEqual, 3)

		Convey("duplicate content resolves to the first index", func() {
			i, ok := idx.Lookup(sigs[1].Weak, func() []byte { return sigs[1].Strong })
			So(ok, ShouldBeTrue)
			So(i, ShouldEqual, 0)
		})

		Convey("strong digest is not computed without a weak hit", func() {
			called := false
			_, ok := idx.Lookup(sigs[0].Weak+1, func() []byte {
				called = true
				return nil
			})
			So(ok, ShouldBeFalse)
			So(called, ShouldBeFalse)
		})

		Convey("weak hit with strong mismatch is not a match", func() {
			_, ok := idx.Lookup(sigs[0].Weak, func() []byte { return []byte("nope") })
			So(ok, ShouldBeFalse)
		})
	})
}
