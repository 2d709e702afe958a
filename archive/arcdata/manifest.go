// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package arcdata

import (
	"io"
	"regexp"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
)

// EntryType discriminates manifest entries.
type EntryType byte

// The manifest entry types.
const (
	EntryFile EntryType = iota + 1
	EntryDir
	EntrySymlink
)

// Valid returns nil iff the EntryType is valid.
func (t EntryType) Valid() error {
	switch t {
	case EntryFile, EntryDir, EntrySymlink:
		return nil
	}
	return errors.Reason("unknown entry type 0x%x", byte(t)).Err()
}

// Entry describes one filesystem object in the archive. File bodies live in
// the data block, concatenated in manifest order; Size says how many bytes
// belong to this entry.
//
// The manifest does not attempt to preserve full ACLs or ownership; porting
// user ids across machines is silly, at best. It records only two portable
// mode concepts, executable and read-only.
type Entry struct {
	// Path is the slash-separated path of the entry, relative to the
	// restore root. Parent directories always precede their contents.
	Path string `msgpack:"path"`

	Type EntryType `msgpack:"type"`

	// Size is the byte length of the entry's data, files only.
	Size uint64 `msgpack:"size,omitempty"`

	Executable bool `msgpack:"exec,omitempty"`
	Readonly   bool `msgpack:"ro,omitempty"`

	// Target is the slash-separated symlink destination, symlinks only.
	Target string `msgpack:"target,omitempty"`
}

// Manifest is the archive's table of contents.
type Manifest struct {
	Entries []*Entry `msgpack:"entries"`
}

// Files calls cb for every file entry, in data-block order.
func (m *Manifest) Files(cb func(e *Entry) error) error {
	for _, e := range m.Entries {
		if e.Type == EntryFile {
			if err := cb(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// DataSize returns the total byte length of the data block's uncompressed
// content.
func (m *Manifest) DataSize() (total uint64) {
	for _, e := range m.Entries {
		if e.Type == EntryFile {
			total += e.Size
		}
	}
	return
}

// Validate checks every entry for malformed or duplicated paths and for
// symlink targets that would escape the restore root.
func (m *Manifest) Validate() error {
	seen := stringset.New(len(m.Entries))
	for _, e := range m.Entries {
		if err := e.Validate(); err != nil {
			return errors.Annotate(err, "in entry %q", e.Path).Err()
		}
		if !seen.Add(e.Path) {
			return errors.Reason("duplicate entry %q", e.Path).Err()
		}
	}
	return nil
}

var badChars = regexp.MustCompile("[<>:\"\\\\|?*\x00-\x1f]")

func checkPathPiece(piece string, allowRel bool) error {
	if piece == "" {
		return errors.New("empty path component")
	}
	if piece == "." {
		return errors.New("'.' path component")
	}
	if idxs := badChars.FindStringIndex(piece); len(idxs) > 0 {
		return errors.Reason("bad char %q in path component", piece[idxs[0]:idxs[1]]).Err()
	}
	if !allowRel && piece == ".." {
		return errors.New("relative path segment not allowed")
	}
	return nil
}

// Validate checks a single entry in isolation.
func (e *Entry) Validate() error {
	if err := e.Type.Valid(); err != nil {
		return err
	}
	pieces := strings.Split(e.Path, "/")
	for _, p := range pieces {
		if err := checkPathPiece(p, false); err != nil {
			return err
		}
	}

	switch e.Type {
	case EntryFile, EntryDir:
		if e.Target != "" {
			return errors.New("non-symlink entry has a symlink target")
		}
	case EntrySymlink:
		if err := validateSymlinkTarget(e.Target, len(pieces)-1); err != nil {
			return err
		}
	}
	return nil
}

// validateSymlinkTarget rejects empty, absolute, and root-escaping targets.
// depth is how many directories deep the symlink itself sits.
func validateSymlinkTarget(target string, depth int) error {
	if target == "" {
		return errors.New("empty symlink target")
	}
	if strings.HasPrefix(target, "/") {
		return errors.Reason("absolute symlink target %q", target).Err()
	}
	level := 0
	for i, p := range strings.Split(target, "/") {
		if err := checkPathPiece(p, true); err != nil {
			return errors.Annotate(err, "symlink target piece %d", i).Err()
		}
		if p == ".." {
			level++
			if level > depth {
				return errors.Reason("symlink target %q escapes root", target).Err()
			}
		}
	}
	return nil
}

// WriteManifest writes a compressed manifest block to the given writer.
func WriteManifest(w io.Writer, m *Manifest, scheme CompressionScheme, level int) (err error) {
	var buf []byte
	if buf, err = msgpack.Marshal(m); err != nil {
		return
	}
	wc, err := BlockWriter(w, scheme, level)
	if err != nil {
		return
	}
	if _, err = wc.Write(buf); err != nil {
		return
	}
	return wc.Close()
}

// ReadManifest parses a compressed manifest block from the given reader.
func ReadManifest(r io.Reader) (ret *Manifest, err error) {
	br, err := BlockReader(r)
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(br)
	if err != nil {
		return
	}
	ret = &Manifest{}
	if err = msgpack.Unmarshal(buf, ret); err == nil {
		err = ret.Validate()
	}
	return
}
