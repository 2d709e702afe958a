// Copyright 2021 The backup Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package delta

// Rollsum is the weak checksum from the rsync algorithm: a cheap,
// collision-prone fingerprint of a byte window that can be slid forward one
// byte in O(1). A match on this value means nothing until confirmed with
// a DigestScheme digest.
//
// The accumulators are deliberately uint16 so that the arithmetic is
// fixed-width and wraps mod 65536 on every update. The recurrence is linear,
// so two sides comparing values computed with the same width always agree.
type Rollsum struct {
	a, b uint16
	n    int
}

// NewRollsum returns a Rollsum whose Roll weight is blockSize. The weight is
// fixed for the life of the checksum; rolling only makes sense while the
// window it describes stays blockSize bytes long.
func NewRollsum(blockSize int) *Rollsum {
	return &Rollsum{n: blockSize}
}

// Reset returns the checksum to its initial state.
func (r *Rollsum) Reset() {
	r.a, r.b = 0, 0
}

// Write computes the checksum of window from scratch, discarding any prior
// state. Bytes near the front of the window carry the highest weight.
func (r *Rollsum) Write(window []byte) {
	r.Reset()
	for i, c := range window {
		r.a += uint16(c)
		r.b += uint16(len(window)-i) * uint16(c)
	}
}

// Roll slides the window one byte forward: removed leaves the front of the
// window and added joins the back.
func (r *Rollsum) Roll(removed, added byte) {
	r.a += uint16(added) - uint16(removed)
	r.b += r.a - uint16(r.n)*uint16(removed)
}

// Sum32 returns the combined checksum value for the current window.
func (r *Rollsum) Sum32() uint32 {
	return uint32(r.b)<<16 | uint32(r.a)
}
