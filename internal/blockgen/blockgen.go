// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/ucoin/powd/internal/block"
)

// Source provides the blocks a generator derives the next block from.
type Source interface {
	// CurrentBlock returns the head of the chain, or nil when the chain has
	// no block yet.
	CurrentBlock(ctx context.Context) (*block.Block, error)

	// Blocks returns at most count blocks starting at number from, in
	// ascending order.
	Blocks(ctx context.Context, count, from uint32) ([]*block.Block, error)
}

// Config is a descriptor containing the block generator configuration.
type Config struct {
	// Issuer is the public key set as the issuer of generated blocks.
	Issuer string

	// MedianTimeBlocks is the number of blocks the median time of the next
	// block is computed over.
	MedianTimeBlocks uint32

	// Source provides the head and the recent blocks of the chain.
	Source Source
}

// Generator assembles candidate blocks that extend the head of the chain
// without content.  The issuers frame, the issuers count and the median time
// follow the chain rules so that the candidate is accepted once proven.
type Generator struct {
	cfg Config
}

// New returns a block generator for the provided configuration.
func New(cfg *Config) (*Generator, error) {
	if cfg.Source == nil {
		return nil, errors.New("no block source specified")
	}
	if cfg.MedianTimeBlocks == 0 {
		return nil, errors.New("median time blocks must be positive")
	}
	return &Generator{cfg: *cfg}, nil
}

// NextBlock returns an empty candidate extending the current head.  Non-zero
// override values replace the computed ones.
//
// This function is safe for concurrent access.
func (g *Generator) NextBlock(ctx context.Context, overrides *block.Overrides) (*block.Block, error) {
	head, err := g.cfg.Source.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, makeError(ErrNoHead, "cannot generate a root block "+
			"without members")
	}
	window, err := g.window(ctx, head)
	if err != nil {
		return nil, err
	}

	number := head.Number + 1
	issuersCount := distinctIssuers(tail(window, head.IssuersFrame))
	medianTime := head.MedianTime
	avg := averageTime(tail(window, min(g.cfg.MedianTimeBlocks, number)))
	if avg > medianTime {
		medianTime = avg
	}

	b := &block.Block{
		Version:         head.Version,
		Currency:        head.Currency,
		Number:          number,
		PowMin:          head.PowMin,
		Time:            medianTime,
		MedianTime:      medianTime,
		UnitBase:        head.UnitBase,
		Issuer:          g.cfg.Issuer,
		IssuersFrame:    nextIssuersFrame(head),
		IssuersFrameVar: nextIssuersFrameVar(head, issuersCount),
		IssuersCount:    issuersCount,
		PreviousHash:    head.Hash,
		PreviousIssuer:  head.Issuer,
		MembersCount:    head.MembersCount,
		MonetaryMass:    head.MonetaryMass,
	}
	if overrides != nil {
		if overrides.MedianTime != 0 {
			b.MedianTime = overrides.MedianTime
			b.Time = overrides.MedianTime
		}
		if overrides.Time != 0 {
			b.Time = overrides.Time
		}
	}
	log.Debugf("Generated candidate block #%d on %s (median time %d, "+
		"issuers %d/%d)", b.Number, head.Stamp(), b.MedianTime,
		b.IssuersCount, b.IssuersFrame)
	return b, nil
}

// window returns the recent blocks ending at head that the rules of the next
// block depend on.
func (g *Generator) window(ctx context.Context, head *block.Block) ([]*block.Block, error) {
	size := max(g.cfg.MedianTimeBlocks, head.IssuersFrame, 1)
	size = min(size, head.Number+1)
	from := head.Number + 1 - size
	blocks, err := g.cfg.Source.Blocks(ctx, size, from)
	if err != nil {
		return nil, err
	}
	if uint32(len(blocks)) != size {
		str := fmt.Sprintf("expected %d blocks from #%d, got %d", size, from,
			len(blocks))
		return nil, makeError(ErrMissingBlocks, str)
	}
	if last := blocks[len(blocks)-1]; last.Number != head.Number ||
		last.Hash != head.Hash {

		str := fmt.Sprintf("block window ends at %s instead of head %s",
			last.Stamp(), head.Stamp())
		return nil, makeError(ErrMissingBlocks, str)
	}
	return blocks, nil
}

// tail returns the last n blocks, or all of them when there are fewer.
func tail(blocks []*block.Block, n uint32) []*block.Block {
	if int(n) >= len(blocks) {
		return blocks
	}
	return blocks[len(blocks)-int(n):]
}

// distinctIssuers returns the number of distinct issuers of the blocks.
func distinctIssuers(blocks []*block.Block) uint32 {
	issuers := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		issuers[b.Issuer] = struct{}{}
	}
	return uint32(len(issuers))
}

// averageTime returns the floored average time of the blocks.
func averageTime(blocks []*block.Block) int64 {
	if len(blocks) == 0 {
		return 0
	}
	var sum int64
	for _, b := range blocks {
		sum += b.Time
	}
	return sum / int64(len(blocks))
}

// nextIssuersFrame returns the issuers frame of the block following head.
func nextIssuersFrame(head *block.Block) uint32 {
	switch {
	case head.IssuersFrameVar > 0:
		return head.IssuersFrame + 1
	case head.IssuersFrameVar < 0 && head.IssuersFrame > 0:
		return head.IssuersFrame - 1
	}
	return head.IssuersFrame
}

// nextIssuersFrameVar returns the issuers frame variation of the block
// following head given its issuers count.
func nextIssuersFrameVar(head *block.Block, issuersCount uint32) int32 {
	v := head.IssuersFrameVar + 5*(int32(issuersCount)-int32(head.IssuersCount))
	switch {
	case head.IssuersFrameVar > 0:
		v--
	case head.IssuersFrameVar < 0:
		v++
	}
	return v
}
