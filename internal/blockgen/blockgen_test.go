// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockgen

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ucoin/powd/internal/block"
)

// fakeSource serves a chain held in memory.
type fakeSource struct {
	chain []*block.Block
	err   error
	short bool
}

func (s *fakeSource) CurrentBlock(context.Context) (*block.Block, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.chain) == 0 {
		return nil, nil
	}
	return s.chain[len(s.chain)-1], nil
}

func (s *fakeSource) Blocks(_ context.Context, count, from uint32) ([]*block.Block, error) {
	end := min(int(from+count), len(s.chain))
	if s.short {
		end--
	}
	return s.chain[from:end], nil
}

// makeChain returns a chain of n blocks spaced by gap seconds whose issuers
// cycle over the provided keys.
func makeChain(n int, gap int64, issuers ...string) []*block.Block {
	chain := make([]*block.Block, 0, n)
	for i := 0; i < n; i++ {
		b := &block.Block{
			Version:      10,
			Currency:     "g1",
			Number:       uint32(i),
			PowMin:       70,
			Time:         1500000000 + int64(i)*gap,
			MedianTime:   1500000000 + int64(i)*gap/2,
			Issuer:       issuers[i%len(issuers)],
			IssuersFrame: 3,
			IssuersCount: 2,
			MembersCount: 5,
			MonetaryMass: 1000,
			Hash:         fmt.Sprintf("00%04X", i),
		}
		chain = append(chain, b)
	}
	return chain
}

// TestNextBlock ensures the next block extends the head following the chain
// rules.
func TestNextBlock(t *testing.T) {
	t.Parallel()

	chain := makeChain(10, 300, "A", "B", "C")
	src := &fakeSource{chain: chain}
	g, err := New(&Config{Issuer: "SELF", MedianTimeBlocks: 4, Source: src})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, err := g.NextBlock(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Times of blocks 6..9 average to 1500000000 + 7.5*300 floored.
	want := &block.Block{
		Version:         10,
		Currency:        "g1",
		Number:          10,
		PowMin:          70,
		Time:            1500002250,
		MedianTime:      1500002250,
		Issuer:          "SELF",
		IssuersFrame:    3,
		IssuersFrameVar: 5,
		IssuersCount:    3,
		PreviousHash:    "000009",
		PreviousIssuer:  "A",
		MembersCount:    5,
		MonetaryMass:    1000,
	}
	if !reflect.DeepEqual(next, want) {
		t.Fatalf("mismatched next block\ngot: %s\nwant: %s", spew.Sdump(next),
			spew.Sdump(want))
	}

	next, err = g.NextBlock(context.Background(), &block.Overrides{
		Time:       1600000000,
		MedianTime: 1590000000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Time != 1600000000 || next.MedianTime != 1590000000 {
		t.Fatalf("overrides not applied: time %d, median time %d", next.Time,
			next.MedianTime)
	}
}

// TestNextBlockMedianTimeFloor ensures the median time never goes below the
// median time of the head.
func TestNextBlockMedianTimeFloor(t *testing.T) {
	t.Parallel()

	chain := makeChain(3, 300, "A")
	chain[2].MedianTime = 1600000000
	g, err := New(&Config{MedianTimeBlocks: 24, Source: &fakeSource{chain: chain}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next, err := g.NextBlock(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.MedianTime != 1600000000 {
		t.Fatalf("unexpected median time %d", next.MedianTime)
	}
}

// TestIssuersFrame ensures the issuers frame and its variation evolve as the
// chain rules require.
func TestIssuersFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		frame        uint32
		frameVar     int32
		prevCount    uint32
		count        uint32
		wantFrame    uint32
		wantFrameVar int32
	}{{
		name:      "stable",
		frame:     6,
		prevCount: 2, count: 2,
		wantFrame: 6, wantFrameVar: 0,
	}, {
		name:      "new issuer",
		frame:     6,
		prevCount: 2, count: 3,
		wantFrame: 6, wantFrameVar: 5,
	}, {
		name:  "growing frame",
		frame: 6, frameVar: 5,
		prevCount: 3, count: 3,
		wantFrame: 7, wantFrameVar: 4,
	}, {
		name:  "shrinking frame",
		frame: 6, frameVar: -5,
		prevCount: 3, count: 2,
		wantFrame: 5, wantFrameVar: -9,
	}}

	for _, test := range tests {
		head := &block.Block{
			IssuersFrame:    test.frame,
			IssuersFrameVar: test.frameVar,
			IssuersCount:    test.prevCount,
		}
		if got := nextIssuersFrame(head); got != test.wantFrame {
			t.Errorf("%s: unexpected frame %d, want %d", test.name, got,
				test.wantFrame)
		}
		got := nextIssuersFrameVar(head, test.count)
		if got != test.wantFrameVar {
			t.Errorf("%s: unexpected frame variation %d, want %d", test.name,
				got, test.wantFrameVar)
		}
	}
}

// TestNextBlockErrors ensures generation failures are reported.
func TestNextBlockErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{MedianTimeBlocks: 1}); err == nil {
		t.Fatal("expected error without source")
	}

	g, _ := New(&Config{MedianTimeBlocks: 4, Source: &fakeSource{}})
	if _, err := g.NextBlock(context.Background(), nil); !errors.Is(err, ErrNoHead) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrNoHead)
	}

	short := &fakeSource{chain: makeChain(10, 300, "A"), short: true}
	g, _ = New(&Config{MedianTimeBlocks: 4, Source: short})
	_, err := g.NextBlock(context.Background(), nil)
	if !errors.Is(err, ErrMissingBlocks) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrMissingBlocks)
	}

	failing := &fakeSource{err: errors.New("unreachable node")}
	g, _ = New(&Config{MedianTimeBlocks: 4, Source: failing})
	if _, err := g.NextBlock(context.Background(), nil); err != failing.err {
		t.Fatalf("unexpected error: got %v, want %v", err, failing.err)
	}
}
