// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package archive

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/zhen-huan-hu/backup/archive/arcdata"
)

func ensureRoot(root string) error {
	st, err := os.Stat(root)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0777); err != nil {
			return errors.Annotate(err, "making root dir").Err()
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return errors.Reason("%q is not a directory", root).Err()
	}
	f, err := os.Open(root)
	if err != nil {
		return err
	}
	finfos, err := f.Readdir(1)
	f.Close()
	if err != nil && err != io.EOF {
		return err
	}
	if len(finfos) != 0 {
		return errors.New("dir not empty")
	}
	return nil
}

func ensureSymlink(wg *sync.WaitGroup, ech chan<- error, abs, rel string, ent *arcdata.Entry) {
	target := filepath.FromSlash(ent.Target)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ech <- errors.Annotate(os.Symlink(target, abs),
			"writing symlink %q -> %q", rel, target).Err()
	}()
}

func ensureFile(syncBuf []byte, wg *sync.WaitGroup, ech chan<- error, abs, rel string, r io.Reader, ent *arcdata.Entry) {
	f, err := os.Create(abs)
	if err != nil {
		ech <- errors.Annotate(err, "creating file %q", rel).Err()
		return
	}
	st, err := f.Stat()
	if err != nil {
		ech <- errors.Annotate(err, "statting file %q", rel).Err()
		return
	}
	if _, err := io.CopyBuffer(f, io.LimitReader(r, int64(ent.Size)), syncBuf); err != nil {
		ech <- errors.Annotate(err, "writing file %q", rel).Err()
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		mode := st.Mode()
		if ent.Executable {
			mode |= 0111 // ugo+x
		}
		if ent.Readonly {
			mode &= 0555 // ugo-w
		}
		if err := f.Chmod(mode); err != nil {
			ech <- errors.Annotate(err, "setting mode %q", rel).Err()
		}
		ech <- errors.Annotate(f.Close(), "closing file %q", rel).Err()
	}()
}

func (a *Archive) prepReader() io.Reader {
	dataReader := io.Reader(a.data)
	if a.opts.unpackBufferSize > 0 {
		rd, wr := io.Pipe()
		go func(r io.Reader) {
			_, err := bufio.NewReaderSize(r, a.opts.unpackBufferSize).WriteTo(wr)
			wr.CloseWithError(err)
		}(dataReader)
		dataReader = rd
	}
	return dataReader
}

// UnpackTo does a streaming unpack of the entire Archive to the provided
// location.
//
// root must be either a non-existent path, or a path to an empty directory.
//
// It is invalid to call UnpackTo twice, or to call it on a Close()'d Archive.
func (a *Archive) UnpackTo(ctx context.Context, root string) error {
	if a.didClose {
		return errors.New("can only unpack once/cannot unpack closed Archive")
	}
	a.didClose = true

	root, err := filepath.Abs(root)
	if err != nil {
		return errors.Annotate(err, "making abspath").Err()
	}

	if err := ensureRoot(root); err != nil {
		return errors.Annotate(err, "checking root").Err()
	}

	dataReader := a.prepReader()

	ech := make(chan error, 1)
	go func() {
		defer close(ech)

		wg := &sync.WaitGroup{}
		defer wg.Wait()

		syncBuf := make([]byte, 32*1024)

		for _, ent := range a.Manifest.Entries {
			rel := filepath.FromSlash(ent.Path)
			abs := filepath.Join(root, rel)

			switch ent.Type {
			case arcdata.EntryDir:
				if err := os.Mkdir(abs, 0777); err != nil {
					// this immediately quits the loop
					ech <- errors.Annotate(err, "FATAL: making dir %q", rel).Err()
					return
				}

			case arcdata.EntrySymlink:
				ensureSymlink(wg, ech, abs, rel, ent)

			case arcdata.EntryFile:
				ensureFile(syncBuf, wg, ech, abs, rel, dataReader, ent)

			default:
				panic("impossible!")
			}
		}
	}()

	hadError := false
	for err := range ech {
		if err == nil {
			continue
		}
		if !hadError {
			logging.Errorf(ctx, "errors while unpacking to %q:", root)
			hadError = true
		}
		logging.Errorf(ctx, "  %s", err)
	}
	if hadError {
		return errors.New("errors while unpacking (see log)")
	}

	if a.opts.verifyState == VerifyLate {
		return a.finishVerify()
	}
	a.data.Close()
	return a.csr.Close()
}
