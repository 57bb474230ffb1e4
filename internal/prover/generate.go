// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"fmt"
	"io"

	"github.com/ucoin/powd/internal/block"
)

// GenerateAndProveTheNext proves b, or the next block assembled by the
// generator when b is nil, outside of the permanent prover.  A zero trial
// uses the personalized difficulty of the node when a chain is configured.  A
// non-zero override time is used as the block time.
//
// The assembly and the difficulty lookup are serialized with the other
// GeneratingNextBlock tasks of the FIFO.
func GenerateAndProveTheNext(ctx context.Context, cfg *Config, b *block.Block, trial uint32, overrides *block.Overrides) (*block.Block, error) {
	if cfg.KeyPair == nil {
		return nil, makeError(ErrNoSelfPubkey, "No self pubkey found.")
	}
	err := cfg.serialize(ctx, func(ctx context.Context) error {
		var err error
		if b == nil {
			if b, err = cfg.Generator.NextBlock(ctx, overrides); err != nil {
				return err
			}
		}
		if trial == 0 && cfg.Chain != nil {
			trial, err = cfg.Chain.PersonalizedDifficulty(ctx, cfg.pubkey())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	var forcedTime int64
	if overrides != nil {
		forcedTime = overrides.Time
	}

	bp := NewBlockProver(cfg)
	defer bp.ShutDown()
	return bp.Prove(ctx, b, trial, forcedTime)
}

// GenerateAndSend proves the next block assembled by the generator at the
// provided difficulty and writes it to dest.  When show is not nil, the raw
// candidate and the raw proven block are printed to it.
func GenerateAndSend(ctx context.Context, cfg *Config, difficulty uint32, overrides *block.Overrides, dest BlockWriter, show io.Writer) (*block.Block, error) {
	if cfg.KeyPair == nil {
		return nil, makeError(ErrNoSelfPubkey, "No self pubkey found.")
	}
	var b *block.Block
	err := cfg.serialize(ctx, func(ctx context.Context) error {
		var err error
		b, err = cfg.Generator.NextBlock(ctx, overrides)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.Issuer = cfg.pubkey()
	log.Debugf("Block to be sent: %s", b.RawInnerPart())
	if show != nil {
		fmt.Fprint(show, b.RawSigned())
	}

	proven, err := GenerateAndProveTheNext(ctx, cfg, b, difficulty, overrides)
	if err != nil {
		return nil, err
	}
	if show != nil {
		fmt.Fprint(show, proven.RawSigned())
	}
	if err := dest.WriteBlock(ctx, proven); err != nil {
		str := fmt.Sprintf("unable to post block #%d: %v", proven.Number, err)
		return nil, makeError(ErrSelfSubmission, str)
	}
	log.Infof("Posted block %s", proven.Stamp())
	return proven, nil
}
