// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rotate names archive files and enforces the retention policy.
//
// Archives are named `<host>-<YYYY-MM-DD>-<seq>.bak` where seq restarts at
// 000 each day. Differential files carry an extra `.diff` suffix. All
// archives sharing a host and month form one iteration; the oldest member is
// the base the month's deltas are computed against.
package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.chromium.org/luci/common/errors"
)

// Ext is the file extension of a full archive.
const Ext = ".bak"

// DiffExt is the extension appended to the archive name for a differential
// file.
const DiffExt = ".diff"

// List returns the names of the regular files in dir whose base name matches
// re, sorted by modification time (oldest first). A missing dir yields an
// empty list.
func List(dir string, re *regexp.Regexp) ([]string, error) {
	dents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "listing %q", dir).Err()
	}

	type fileMtime struct {
		path  string
		mtime time.Time
	}
	var found []fileMtime
	for _, de := range dents {
		if !de.Type().IsRegular() || !re.MatchString(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, errors.Annotate(err, "statting %q", de.Name()).Err()
		}
		found = append(found, fileMtime{filepath.Join(dir, de.Name()), info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].mtime.Before(found[j].mtime)
	})

	ret := make([]string, len(found))
	for i, f := range found {
		ret[i] = f.path
	}
	return ret, nil
}

// Next returns the path for the next archive made on the given day. The
// sequence number is one past the most recently modified archive of that day,
// or 000 for the first.
func Next(dir, host string, now time.Time) (string, error) {
	date := now.Format("2006-01-02")
	re := regexp.MustCompile(
		fmt.Sprintf(`^%s-%s-(\d{3,})`, regexp.QuoteMeta(host), date))

	existing, err := List(dir, re)
	if err != nil {
		return "", err
	}

	seq := 0
	if len(existing) > 0 {
		last := re.FindStringSubmatch(filepath.Base(existing[len(existing)-1]))
		n, err := strconv.Atoi(last[1])
		if err != nil {
			return "", errors.Annotate(err, "parsing sequence of %q", existing[len(existing)-1]).Err()
		}
		seq = n + 1
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s-%03d%s", host, date, seq, Ext)), nil
}

// MonthIterations returns the archives belonging to the same host and month
// as now, oldest first. The first element (when there is more than one) is
// the base for differential archives in that month.
func MonthIterations(dir, host string, now time.Time) ([]string, error) {
	re := regexp.MustCompile(
		fmt.Sprintf(`^%s-%s`, regexp.QuoteMeta(host), now.Format("2006-01")))
	return List(dir, re)
}

// Purge removes old archives from dir. Walking newest to oldest, the first
// keep full archives are retained (differential files riding along with
// them); everything older is removed. keep <= 0 disables purging.
func Purge(dir, host string, keep int) error {
	if keep <= 0 {
		return nil
	}

	re := regexp.MustCompile(
		fmt.Sprintf(`^%s-\d{4}-\d{2}-\d{2}-\d{3,}`, regexp.QuoteMeta(host)))
	archives, err := List(dir, re)
	if err != nil {
		return err
	}

	count := 0
	for i := len(archives) - 1; i >= 0; i-- {
		path := archives[i]
		if count < keep {
			if filepath.Ext(path) == Ext {
				count++
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return errors.Annotate(err, "purging %q", path).Err()
		}
	}
	return nil
}
