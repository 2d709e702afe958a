// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command backup creates and extracts rotating archive files, optionally
// reducing each month's archives after the first to rsync-style delta files.
package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/cli"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"

	"github.com/zhen-huan-hu/backup/archive"
	"github.com/zhen-huan-hu/backup/archive/arcdata"
	"github.com/zhen-huan-hu/backup/delta"
	"github.com/zhen-huan-hu/backup/rotate"
)

func setUpLogging(verbose bool) context.Context {
	ctx := gologger.StdConfig.Use(context.Background())
	if verbose {
		return logging.SetLevel(ctx, logging.Debug)
	}
	return logging.SetLevel(ctx, logging.Info)
}

func fatalIf(ctx context.Context, err error) {
	if err == nil {
		return
	}
	logging.Errorf(ctx, "%s", err)
	os.Exit(1)
}

// createTarget opens the archive file for writing. A missing target
// directory is created and the open retried once.
func createTarget(ctx context.Context, name string) (*os.File, error) {
	f, err := os.Create(name)
	if os.IsNotExist(err) {
		dir := filepath.Dir(name)
		logging.Debugf(ctx, "making directory %s", dir)
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, errors.Annotate(err, "making target dir").Err()
		}
		f, err = os.Create(name)
	}
	return f, errors.Annotate(err, "creating %q", name).Err()
}

func compressionScheme(c *cli.Context) (arcdata.CompressionScheme, error) {
	switch name := c.String("compression"); name {
	case "":
		if c.Bool("compress") {
			return arcdata.CompressionFlate, nil
		}
		return arcdata.CompressionNone, nil
	case "flate":
		return arcdata.CompressionFlate, nil
	case "snappy":
		return arcdata.CompressionSnappy, nil
	case "zstd":
		return arcdata.CompressionZstd, nil
	default:
		return 0, errors.Reason("unknown compression scheme %q", name).Err()
	}
}

// writeDelta reduces the freshly written archive to a differential file
// against the oldest archive of the month, then removes the full archive.
func writeDelta(ctx context.Context, father, target string) (err error) {
	fatherFid, err := os.Open(father)
	if err != nil {
		return errors.Annotate(err, "opening %q", father).Err()
	}
	defer fatherFid.Close()

	sigs, err := delta.BuildSignatures(fatherFid)
	if err != nil {
		return errors.Annotate(err, "hashing %q", father).Err()
	}

	targetFid, err := os.Open(target)
	if err != nil {
		return errors.Annotate(err, "opening %q", target).Err()
	}
	defer targetFid.Close()

	gen, err := delta.NewGenerator(targetFid, delta.NewSignatureIndex(sigs))
	if err != nil {
		return err
	}

	diffFid, err := os.Create(target + rotate.DiffExt)
	if err != nil {
		return errors.Annotate(err, "creating diff").Err()
	}
	defer func() {
		if cerr := diffFid.Close(); err == nil {
			err = cerr
		}
	}()

	logging.Infof(ctx, "making diff file %s", diffFid.Name())
	if err := delta.Encode(diffFid, gen); err != nil {
		return errors.Annotate(err, "writing diff").Err()
	}
	return nil
}

func createAction(c *cli.Context) {
	ctx := setUpLogging(c.Bool("verbose"))

	sources := c.Args()
	if len(sources) == 0 {
		fatalIf(ctx, errors.New("no sources given"))
	}
	dir := c.String("target")
	if dir == "" {
		dir = "."
	}
	host, err := os.Hostname()
	fatalIf(ctx, err)
	now := time.Now()

	scheme, err := compressionScheme(c)
	fatalIf(ctx, err)
	opts := []archive.CreateOption{archive.WithCompression(scheme, 9)}
	if limit := c.String("size-limit"); limit != "" {
		n, err := humanize.ParseBytes(limit)
		fatalIf(ctx, errors.Annotate(err, "parsing size limit").Err())
		opts = append(opts, archive.WithSizeLimit(n))
	}
	if exts := c.StringSlice("file-type"); len(exts) > 0 {
		opts = append(opts, archive.WithFileTypes(exts...))
	}

	name, err := rotate.Next(dir, host, now)
	fatalIf(ctx, err)

	fid, err := createTarget(ctx, name)
	fatalIf(ctx, err)
	if err := archive.Create(ctx, fid, sources, opts...); err != nil {
		fid.Close()
		os.Remove(name)
		fatalIf(ctx, err)
	}
	fatalIf(ctx, errors.Annotate(fid.Close(), "closing %q", name).Err())
	logging.Infof(ctx, "wrote %s", name)

	if c.Bool("delta") {
		iteration, err := rotate.MonthIterations(dir, host, now)
		fatalIf(ctx, err)
		if len(iteration) > 1 {
			fatalIf(ctx, writeDelta(ctx, iteration[0], name))
			fatalIf(ctx, errors.Annotate(os.Remove(name), "removing full archive").Err())
		}
	}

	if keep := c.Int("keep"); keep > 0 {
		fatalIf(ctx, rotate.Purge(dir, host, keep))
	}
}

// patchArchive reconstructs a full archive from father + diff into a
// temporary file and returns it positioned at the start.
func patchArchive(ctx context.Context, father, diff string) (*os.File, error) {
	fatherFid, err := os.Open(father)
	if err != nil {
		return nil, errors.Annotate(err, "opening %q", father).Err()
	}
	defer fatherFid.Close()

	diffFid, err := os.Open(diff)
	if err != nil {
		return nil, errors.Annotate(err, "opening %q", diff).Err()
	}
	defer diffFid.Close()

	tmp, err := os.CreateTemp("", "backup-patch-*")
	if err != nil {
		return nil, errors.Annotate(err, "creating temp file").Err()
	}
	os.Remove(tmp.Name())

	logging.Infof(ctx, "patching %s with %s", father, diff)
	patcher, err := delta.NewPatcher()
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := patcher.Apply(fatherFid, delta.NewDecoder(diffFid), tmp); err != nil {
		tmp.Close()
		return nil, errors.Annotate(err, "applying diff").Err()
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, err
	}
	return tmp, nil
}

func extractAction(c *cli.Context) {
	ctx := setUpLogging(c.Bool("verbose"))

	if len(c.Args()) != 1 {
		fatalIf(ctx, errors.New("expected exactly one ARCHIVE argument"))
	}
	source := c.Args().First()
	dir := c.String("target")
	if dir == "" {
		dir = "."
	}

	var fid *os.File
	var err error
	if diff := c.String("diff"); diff != "" {
		fid, err = patchArchive(ctx, source, diff)
	} else {
		fid, err = os.Open(source)
		err = errors.Annotate(err, "opening %q", source).Err()
	}
	fatalIf(ctx, err)

	ar, err := archive.Open(fid)
	fatalIf(ctx, errors.Annotate(err, "reading archive").Err())

	logging.Infof(ctx, "extracting to %s", dir)
	fatalIf(ctx, ar.UnpackTo(ctx, dir))
}

func main() {
	app := cli.NewApp()
	app.Name = "backup"
	app.Usage = "rotating archives with monthly delta compression"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:  "create",
			Usage: "archive the given sources into the next rotation slot",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "target, t",
					Usage: "directory the archives are kept in",
				},
				cli.BoolFlag{
					Name:  "compress, c",
					Usage: "compress the archive contents",
				},
				cli.StringFlag{
					Name:  "compression",
					Usage: "compression scheme: flate, snappy or zstd",
				},
				cli.BoolFlag{
					Name:  "delta, r",
					Usage: "store archives after the month's first as delta files",
				},
				cli.StringFlag{
					Name:  "size-limit, l",
					Usage: "skip files over this size (accepts 64MB and friends)",
				},
				cli.StringSliceFlag{
					Name:  "file-type, f",
					Usage: "only archive files with this extension (repeatable)",
				},
				cli.IntFlag{
					Name:  "keep, k",
					Usage: "maximum full archives to keep, 0 keeps everything",
				},
				cli.BoolFlag{
					Name:  "verbose, v",
					Usage: "enable debug logging",
				},
			},
			Action: createAction,
		},
		{
			Name:      "extract",
			Usage:     "unpack an archive, optionally patching it with a delta first",
			ArgsUsage: "ARCHIVE",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "target, t",
					Usage: "directory to unpack into",
				},
				cli.StringFlag{
					Name:  "diff, d",
					Usage: "delta file to apply to ARCHIVE before unpacking",
				},
				cli.BoolFlag{
					Name:  "verbose, v",
					Usage: "enable debug logging",
				},
			},
			Action: extractAction,
		},
	}
	app.Run(os.Args)
}
