// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/zhen-huan-hu/backup/archive/arcdata"
)

type createOptionData struct {
	compressKind  arcdata.CompressionScheme
	compressLevel int
	checksumKind  arcdata.ChecksumScheme
	fileTypes     stringset.Set
	sizeLimit     uint64
}

// CreateOption functions can be supplied to the Create function.
type CreateOption func(*createOptionData)

// WithCompression selects the compression scheme and level for the manifest
// and data blocks.
func WithCompression(kind arcdata.CompressionScheme, level int) CreateOption {
	return func(o *createOptionData) {
		o.compressKind = kind
		o.compressLevel = level
	}
}

// WithChecksum selects the trailing checksum scheme.
func WithChecksum(kind arcdata.ChecksumScheme) CreateOption {
	return func(o *createOptionData) {
		o.checksumKind = kind
	}
}

// WithFileTypes restricts archived files to the given extensions (with or
// without the leading dot). Directories and symlinks are unaffected.
func WithFileTypes(exts ...string) CreateOption {
	return func(o *createOptionData) {
		o.fileTypes = stringset.New(len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			o.fileTypes.Add(strings.ToLower(e))
		}
	}
}

// WithSizeLimit excludes files larger than limit bytes. Zero means no limit.
func WithSizeLimit(limit uint64) CreateOption {
	return func(o *createOptionData) {
		o.sizeLimit = limit
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Create archives the given source files or directory trees into w. Each
// source appears in the archive under its own base name, so restoring
// recreates the named trees side by side.
//
// The whole archive is written in one pass: magic, manifest block, data
// block, trailing checksum.
func Create(ctx context.Context, w io.Writer, sources []string, options ...CreateOption) error {
	if len(sources) == 0 {
		return errors.New("no sources given")
	}

	defaultChecksum := arcdata.ChecksumSHA2_256
	if runtime.GOARCH == "amd64" {
		defaultChecksum = arcdata.ChecksumSHA2_512
	}

	opts := createOptionData{
		compressKind:  arcdata.CompressionFlate,
		compressLevel: 9,
		checksumKind:  defaultChecksum,
	}
	for _, o := range options {
		o(&opts)
	}

	manifest := &arcdata.Manifest{}
	var files []string // absolute path per EntryFile, in manifest order
	for _, source := range sources {
		if err := scanTree(ctx, source, &opts, manifest, &files); err != nil {
			return err
		}
	}
	if err := manifest.Validate(); err != nil {
		return errors.Annotate(err, "assembling manifest").Err()
	}

	cw := opts.checksumKind.Writer(nopWriteCloser{w})
	if err := arcdata.WriteMagic(cw); err != nil {
		return errors.Annotate(err, "writing magic").Err()
	}
	if err := arcdata.WriteManifest(cw, manifest, opts.compressKind, opts.compressLevel); err != nil {
		return errors.Annotate(err, "writing manifest").Err()
	}

	bw, err := arcdata.BlockWriter(cw, opts.compressKind, opts.compressLevel)
	if err != nil {
		return errors.Annotate(err, "opening data block").Err()
	}
	fileIdx := 0
	err = manifest.Files(func(e *arcdata.Entry) error {
		abs := files[fileIdx]
		fileIdx++
		f, err := os.Open(abs)
		if err != nil {
			return errors.Annotate(err, "opening %q", e.Path).Err()
		}
		defer f.Close()
		if _, err := io.CopyN(bw, f, int64(e.Size)); err != nil {
			return errors.Annotate(err, "archiving %q", e.Path).Err()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := bw.Close(); err != nil {
		return errors.Annotate(err, "closing data block").Err()
	}
	return errors.Annotate(cw.Close(), "writing checksum").Err()
}

// scanTree appends manifest entries for one source root. Filters apply to
// regular files only, matching the behavior of listing a tree by hand and
// leaving out what you don't want.
func scanTree(ctx context.Context, source string, opts *createOptionData, m *arcdata.Manifest, files *[]string) error {
	source = filepath.Clean(source)
	base := filepath.Base(source)
	logging.Infof(ctx, "adding %s", source)

	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Annotate(err, "walking %q", path).Err()
		}

		rel := base
		if path != source {
			sub, err := filepath.Rel(source, path)
			if err != nil {
				return errors.Annotate(err, "relativizing %q", path).Err()
			}
			rel = filepath.ToSlash(filepath.Join(base, sub))
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return errors.Annotate(err, "reading symlink %q", rel).Err()
			}
			m.Entries = append(m.Entries, &arcdata.Entry{
				Path:   rel,
				Type:   arcdata.EntrySymlink,
				Target: filepath.ToSlash(target),
			})

		case d.IsDir():
			m.Entries = append(m.Entries, &arcdata.Entry{
				Path: rel,
				Type: arcdata.EntryDir,
			})

		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return errors.Annotate(err, "statting %q", rel).Err()
			}
			if opts.fileTypes != nil && opts.fileTypes.Len() > 0 &&
				!opts.fileTypes.Has(strings.ToLower(filepath.Ext(path))) {
				logging.Debugf(ctx, "skipping %s: filtered extension", rel)
				return nil
			}
			if opts.sizeLimit > 0 && uint64(info.Size()) > opts.sizeLimit {
				logging.Debugf(ctx, "skipping %s: %s over the size limit", rel,
					humanize.Bytes(uint64(info.Size())))
				return nil
			}
			m.Entries = append(m.Entries, &arcdata.Entry{
				Path:       rel,
				Type:       arcdata.EntryFile,
				Size:       uint64(info.Size()),
				Executable: info.Mode()&0111 != 0,
				Readonly:   info.Mode()&0200 == 0,
			})
			*files = append(*files, path)

		default:
			logging.Debugf(ctx, "skipping %s: irregular file", rel)
		}
		return nil
	})
}
