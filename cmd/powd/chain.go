// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"

	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/bma"
	"github.com/ucoin/powd/internal/pow"
)

// nodeClient is the part of the node API client the prover relies on.
type nodeClient interface {
	CurrentBlock(ctx context.Context) (*block.Block, error)
	Blocks(ctx context.Context, count, from uint32) ([]*block.Block, error)
	Parameters(ctx context.Context) (*bma.Parameters, error)
	IdentityOf(ctx context.Context, pubkey string) (*bma.Identity, error)
	Hardship(ctx context.Context, pubkey string) (*bma.Hardship, error)
	PostBlock(ctx context.Context, b *block.Block) (*block.Block, error)
}

// nodeChain serves the chain state of a remote node to the prover and posts
// proven blocks to it.
type nodeChain struct {
	client nodeClient
}

// CurrentBlock returns the head of the remote chain, or nil when it has no
// block yet.
func (c *nodeChain) CurrentBlock(ctx context.Context) (*block.Block, error) {
	return c.client.CurrentBlock(ctx)
}

// IsMember reports whether pubkey is a member of the web of trust.
func (c *nodeChain) IsMember(ctx context.Context, pubkey string) (bool, error) {
	_, err := c.client.IdentityOf(ctx, pubkey)
	switch {
	case errors.Is(err, bma.ErrNotFound), errors.Is(err, bma.ErrNotMember):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// PersonalizedDifficulty returns the difficulty pubkey must prove the next
// block with.
func (c *nodeChain) PersonalizedDifficulty(ctx context.Context, pubkey string) (uint32, error) {
	h, err := c.client.Hardship(ctx, pubkey)
	if err != nil {
		return 0, err
	}
	return h.Level, nil
}

// WriteBlock posts a proven block to the node.
func (c *nodeChain) WriteBlock(ctx context.Context, b *block.Block) error {
	accepted, err := c.client.PostBlock(ctx, b)
	if err != nil {
		return err
	}
	powdLog.Infof("Node accepted block %s", accepted.Stamp())
	return nil
}

// timeParams returns the block time parameters of the chain.  Non-zero
// configured values take precedence over the parameters of the node.
func (c *nodeChain) timeParams(ctx context.Context, cfg *config) (pow.TimeParams, error) {
	params := pow.TimeParams{
		AvgGenTime:       cfg.AvgGenTime,
		MedianTimeBlocks: cfg.MedianTimeBlocks,
		RootOffset:       cfg.RootOffset,
	}
	if params.AvgGenTime != 0 && params.MedianTimeBlocks != 0 {
		return params, nil
	}
	remote, err := c.client.Parameters(ctx)
	if err != nil {
		return pow.TimeParams{}, err
	}
	if params.AvgGenTime == 0 {
		params.AvgGenTime = remote.AvgGenTime
	}
	if params.MedianTimeBlocks == 0 {
		params.MedianTimeBlocks = remote.MedianTimeBlocks
	}
	return params, nil
}
