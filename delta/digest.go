// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:generate stringer -type DigestScheme

package delta

import (
	"crypto/md5"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"

	"go.chromium.org/luci/common/errors"
)

// DigestScheme selects the strong hash used to confirm a weak-checksum hit.
// The weak checksum produces false positives by design; only a window whose
// strong digest also equals the stored one counts as a block match.
type DigestScheme byte

// These are the available digest algorithms. DigestMD5 is the default; its
// 128 bits are plenty against accidental collisions, which is the only threat
// model here.
const (
	DigestMD5 DigestScheme = iota + 1
	DigestBLAKE2b
	DigestBLAKE3
)

// Valid returns nil iff the DigestScheme is valid.
func (d DigestScheme) Valid() error {
	switch d {
	case DigestMD5, DigestBLAKE2b, DigestBLAKE3:
		return nil
	}
	return errors.Reason("unknown digest scheme 0x%x", byte(d)).Err()
}

// Hash returns a fresh hash.Hash for the scheme.
func (d DigestScheme) Hash() hash.Hash {
	switch d {
	case DigestMD5:
		return md5.New()
	case DigestBLAKE2b:
		h, _ := blake2b.New(16, nil)
		return h
	case DigestBLAKE3:
		return blake3.New()
	}
	panic(d.Valid())
}

// Size returns the fixed digest length in bytes.
func (d DigestScheme) Size() int {
	return d.Hash().Size()
}

func (d DigestScheme) digest(window []byte) []byte {
	h := d.Hash()
	h.Write(window)
	return h.Sum(nil)
}
