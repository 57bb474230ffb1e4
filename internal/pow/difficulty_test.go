// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"strings"
	"testing"
)

// TestEncodeDifficulty ensures difficulty levels translate into the expected
// hash patterns.
func TestEncodeDifficulty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		difficulty uint32
		want       Target
		highMark   string
	}{
		{difficulty: 0, want: Target{Zeros: 0, Bound: 0xf}, highMark: "9A-F"},
		{difficulty: 1, want: Target{Zeros: 0, Bound: 0xe}, highMark: "9A-E"},
		{difficulty: 5, want: Target{Zeros: 0, Bound: 0xa}, highMark: "9A"},
		{difficulty: 16, want: Target{Zeros: 1, Bound: 0xf}, highMark: "9A-F"},
		{difficulty: 24, want: Target{Zeros: 1, Bound: 0x7}, highMark: "7"},
		{difficulty: 70, want: Target{Zeros: 4, Bound: 0x9}, highMark: "9"},
		{difficulty: 78, want: Target{Zeros: 4, Bound: 0x1}, highMark: "1"},
		{difficulty: 79, want: Target{Zeros: 4, Bound: 0x1}, highMark: "1"},
	}

	for _, test := range tests {
		got := EncodeDifficulty(test.difficulty)
		if got != test.want {
			t.Errorf("difficulty %d: got %+v, want %+v", test.difficulty,
				got, test.want)
			continue
		}
		if again := EncodeDifficulty(test.difficulty); again != got {
			t.Errorf("difficulty %d: encoding is not deterministic",
				test.difficulty)
		}
		if got.HighMark() != test.highMark {
			t.Errorf("difficulty %d: high mark %q, want %q",
				test.difficulty, got.HighMark(), test.highMark)
		}
	}

	for d := uint32(0); d < 2048; d++ {
		if got := EncodeDifficulty(d).Zeros; got != int(d/16) {
			t.Fatalf("difficulty %d: got %d zeros, want %d", d, got, d/16)
		}
	}
}

// TestTargetCheck ensures hashes are matched against targets.
func TestTargetCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target Target
		hash   string
		want   bool
	}{{
		name:   "digit under the bound",
		target: Target{Zeros: 1, Bound: 7},
		hash:   "03B176DE082DC451235763D4087305BBD01FD6B6C3248C74EF93B0839DFE9A05",
		want:   true,
	}, {
		name:   "digit over the bound",
		target: Target{Zeros: 1, Bound: 7},
		hash:   "08B176DE",
		want:   false,
	}, {
		name:   "extra zero",
		target: Target{Zeros: 1, Bound: 7},
		hash:   "00B176DE",
		want:   true,
	}, {
		name:   "missing zero",
		target: Target{Zeros: 2, Bound: 0xf},
		hash:   "0AB176DE",
		want:   false,
	}, {
		name:   "letter bound",
		target: Target{Zeros: 0, Bound: 0xe},
		hash:   "E0",
		want:   true,
	}, {
		name:   "letter over bound",
		target: Target{Zeros: 0, Bound: 0xe},
		hash:   "F0",
		want:   false,
	}, {
		name:   "more zeros than hash digits",
		target: Target{Zeros: 64, Bound: 0xf},
		hash:   strings.Repeat("0", 64),
		want:   false,
	}, {
		name:   "not hexadecimal",
		target: Target{Zeros: 0, Bound: 0xf},
		hash:   "Z0",
		want:   false,
	}}

	for _, test := range tests {
		if got := test.target.Check(test.hash); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// TestNonceLayout ensures prefixes and worker chunks are placed in the
// expected digits of the nonce.
func TestNonceLayout(t *testing.T) {
	t.Parallel()

	if got := ScalePrefix(0); got != 0 {
		t.Fatalf("unexpected scaled zero prefix %d", got)
	}
	if got := ScalePrefix(899); got != 8990000000000000 {
		t.Fatalf("unexpected scaled prefix %d", got)
	}
	if got := ScalePrefix(8990000000000000); got != 8990000000000000 {
		t.Fatalf("scaled prefix was scaled again: %d", got)
	}
	if got := NonceBeginning(0, 1); got != 0 {
		t.Fatalf("unexpected nonce beginning for a lone worker %d", got)
	}
	if got := NonceBeginning(2, 4); got != 300000000000 {
		t.Fatalf("unexpected nonce beginning for worker #2 %d", got)
	}
}
