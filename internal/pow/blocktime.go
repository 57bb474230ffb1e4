// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"math"

	"github.com/ucoin/powd/internal/block"
)

// difficultyRangeRatio is the tolerance applied to the average generation
// time to obtain the maximum generation time of a block.
const difficultyRangeRatio = 1.189

// TimeParams holds the currency parameters that bound the time a block may
// carry.
type TimeParams struct {
	// AvgGenTime is the targeted average time in seconds between blocks.
	AvgGenTime int64

	// MedianTimeBlocks is the number of blocks the median time is computed
	// over.
	MedianTimeBlocks uint32

	// RootOffset is subtracted from the current time while the chain is
	// shorter than MedianTimeBlocks.
	RootOffset int64
}

// MaxAcceleration returns the greatest distance in seconds a block time may
// have in advance of its median time.
func (p TimeParams) MaxAcceleration() int64 {
	maxGenTime := math.Ceil(float64(p.AvgGenTime) * difficultyRangeRatio)
	return int64(math.Ceil(maxGenTime * float64(p.MedianTimeBlocks)))
}

// BlockTime returns the time the candidate block should carry at the given
// unix time now.  A non-zero forcedTime always wins.
func BlockTime(b *block.Block, p TimeParams, forcedTime, now int64) int64 {
	if forcedTime != 0 {
		return forcedTime
	}
	var offset int64
	if b.Number < p.MedianTimeBlocks {
		offset = p.RootOffset
	}
	upper := b.MedianTime
	if b.Number != 0 {
		upper = min(b.MedianTime+p.MaxAcceleration(), now-offset)
	}
	return max(b.MedianTime, upper)
}
