// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"fmt"
	"strings"
)

// upperBounds maps the remainder of a difficulty level divided by 16 to the
// greatest value the nibble following the required zeros may take.  The last
// entry repeats the previous one.
var upperBounds = [16]uint8{
	0xf, 0xe, 0xd, 0xc, 0xb, 0xa, 0x9, 0x8,
	0x7, 0x6, 0x5, 0x4, 0x3, 0x2, 0x1, 0x1,
}

// Target is the hash pattern a proof must match: Zeros leading '0' hex digits
// followed by a digit whose value does not exceed Bound.
type Target struct {
	Zeros int
	Bound uint8
}

// EncodeDifficulty translates a difficulty level into the hash pattern a
// proof must match.
func EncodeDifficulty(difficulty uint32) Target {
	return Target{
		Zeros: int(difficulty / 16),
		Bound: upperBounds[difficulty%16],
	}
}

// Check reports whether the uppercase hexadecimal hash satisfies the target.
func (t Target) Check(hash string) bool {
	if len(hash) <= t.Zeros {
		return false
	}
	for i := 0; i < t.Zeros; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	v, ok := hexValue(hash[t.Zeros])
	return ok && v <= t.Bound
}

// HighMark returns the character class accepted for the digit following the
// leading zeros, in the form used by log messages ("9A-F", "9A", "7", ...).
func (t Target) HighMark() string {
	switch {
	case t.Bound > 0xa:
		return "9A-" + strings.ToUpper(fmt.Sprintf("%x", t.Bound))
	case t.Bound == 0xa:
		return "9A"
	default:
		return fmt.Sprintf("%d", t.Bound)
	}
}

// String returns the target in a human readable form.
func (t Target) String() string {
	return fmt.Sprintf("%d leading zeros followed by [0-%s]", t.Zeros,
		t.HighMark())
}

// LeadingZeros returns the number of leading '0' characters of the hash.
func LeadingZeros(hash string) int {
	n := 0
	for n < len(hash) && hash[n] == '0' {
		n++
	}
	return n
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
