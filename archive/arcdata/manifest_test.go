// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package arcdata

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	. "go.chromium.org/luci/common/testing/assertions"
)

func TestManifest(t *testing.T) {
	t.Parallel()

	Convey("Manifest", t, func() {
		m := &Manifest{Entries: []*Entry{
			{Path: "docs", Type: EntryDir},
			{Path: "docs/readme.txt", Type: EntryFile, Size: 11},
			{Path: "docs/latest", Type: EntrySymlink, Target: "readme.txt"},
			{Path: "bin", Type: EntryDir},
			{Path: "bin/tool", Type: EntryFile, Size: 42, Executable: true},
		}}

		Convey("round trips through a block", func() {
			buf := &bytes.Buffer{}
			So(WriteManifest(buf, m, CompressionFlate, 9), ShouldBeNil)
			got, err := ReadManifest(buf)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, m)
		})

		Convey("accessors", func() {
			So(m.DataSize(), ShouldEqual, 53)
			var files []string
			So(m.Files(func(e *Entry) error {
				files = append(files, e.Path)
				return nil
			}), ShouldBeNil)
			So(files, ShouldResemble, []string{"docs/readme.txt", "bin/tool"})
		})

		Convey("validation", func() {
			check := func(e *Entry) error {
				bad := &Manifest{Entries: append(m.Entries, e)}
				return bad.Validate()
			}

			Convey("ok", func() {
				So(m.Validate(), ShouldBeNil)
			})

			Convey("duplicate entry", func() {
				So(check(&Entry{Path: "bin/tool", Type: EntryFile}),
					ShouldErrLike, `duplicate entry "bin/tool"`)
			})

			Convey("unknown type", func() {
				So(check(&Entry{Path: "x", Type: EntryType(9)}),
					ShouldErrLike, "unknown entry type 0x9")
			})

			Convey("empty path component", func() {
				So(check(&Entry{Path: "docs//x", Type: EntryFile}),
					ShouldErrLike, "empty path component")
			})

			Convey("dot path component", func() {
				So(check(&Entry{Path: "./x", Type: EntryFile}),
					ShouldErrLike, "'.' path component")
			})

			Convey("relative path segment", func() {
				So(check(&Entry{Path: "../x", Type: EntryFile}),
					ShouldErrLike, "relative path segment not allowed")
			})

			Convey("bad char", func() {
				So(check(&Entry{Path: "a<b", Type: EntryFile}),
					ShouldErrLike, "bad char")
			})

			Convey("file with symlink target", func() {
				So(check(&Entry{Path: "x", Type: EntryFile, Target: "y"}),
					ShouldErrLike, "non-symlink entry has a symlink target")
			})

			Convey("empty symlink target", func() {
				So(check(&Entry{Path: "x", Type: EntrySymlink}),
					ShouldErrLike, "empty symlink target")
			})

			Convey("absolute symlink target", func() {
				So(check(&Entry{Path: "x", Type: EntrySymlink, Target: "/etc/passwd"}),
					ShouldErrLike, "absolute symlink target")
			})

			Convey("symlink escapes root", func() {
				So(check(&Entry{Path: "docs/link", Type: EntrySymlink, Target: "../../outside"}),
					ShouldErrLike, "escapes root")
			})

			Convey("symlink may climb within root", func() {
				So(check(&Entry{Path: "docs/link", Type: EntrySymlink, Target: "../bin/tool"}),
					ShouldBeNil)
			})
		})
	})
}
