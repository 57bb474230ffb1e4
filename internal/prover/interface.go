// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"

	"github.com/ucoin/powd/internal/block"
)

// Chain provides read access to the state of the chain the node builds on.
type Chain interface {
	// CurrentBlock returns the head of the chain, or nil when the chain
	// has no root block yet.
	CurrentBlock(ctx context.Context) (*block.Block, error)

	// IsMember reports whether the key is a member of the web of trust.
	IsMember(ctx context.Context, pubkey string) (bool, error)

	// PersonalizedDifficulty returns the difficulty level the key must
	// prove its next block at.
	PersonalizedDifficulty(ctx context.Context, pubkey string) (uint32, error)
}

// Generator assembles candidate blocks.
type Generator interface {
	// NextBlock returns an unproven candidate extending the current head.
	// Non-zero overrides are applied to the candidate.
	NextBlock(ctx context.Context, overrides *block.Overrides) (*block.Block, error)
}

// BlockWriter accepts proven blocks into a node.
type BlockWriter interface {
	WriteBlock(ctx context.Context, b *block.Block) error
}

// Serializer runs tasks one at a time per name.
type Serializer interface {
	Push(ctx context.Context, name string, task func(ctx context.Context) error) error
}

// StateRecorder persists the head stamp workers check between turns.
type StateRecorder interface {
	Current() (stamp string, ok bool, err error)
	SetCurrent(stamp string) error
	Stop() error
	SetLastProven(hash string) error
}
