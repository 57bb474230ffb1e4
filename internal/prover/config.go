// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"time"

	"github.com/ucoin/powd/internal/keypair"
	"github.com/ucoin/powd/internal/pow"
)

const (
	// DefaultCPU is the default share of CPU time spent hashing.
	DefaultCPU = pow.DefaultCPU

	// DefaultPowSecurityRetryDelay is the default longest time a waiting
	// round lasts when nothing happens.
	DefaultPowSecurityRetryDelay = 10 * time.Minute

	// DefaultPowMaxHandicap is the default greatest distance between the
	// personalized difficulty of the node and the minimum difficulty under
	// which the node still computes blocks.
	DefaultPowMaxHandicap = 64

	// DefaultNearMissZeros is the default least number of leading zeros of
	// a near miss for it to be logged.
	DefaultNearMissZeros = 3

	// GeneratingNextBlock is the name under which the reading of the
	// difficulty, the assembly of candidate blocks and the application of
	// head changes are serialized.
	GeneratingNextBlock = "generatingNextBlock"
)

// Config is a descriptor containing the prover configuration.
type Config struct {
	// KeyPair is the identity blocks are issued and signed with.
	KeyPair *keypair.KeyPair

	// CPU is the share of CPU time workers spend hashing, in (0, 1].
	CPU float64

	// Prefix is the nonce prefix of the node, from 0 to pow.MaxPrefix.
	Prefix uint64

	// NbCores is the number of workers searching in parallel.
	NbCores int

	// PowDelay is the least time waited before computing a block after the
	// head was issued by the node itself.
	PowDelay time.Duration

	// PowSecurityRetryDelay bounds the duration of a waiting round.
	PowSecurityRetryDelay time.Duration

	// PowMaxHandicap is the greatest accepted distance between the
	// personalized difficulty and the minimum difficulty of the head.
	PowMaxHandicap uint32

	// NearMissZeros is the least number of leading zeros of a near miss
	// for it to be logged.
	NearMissZeros int

	// Params bounds the time of the generated blocks.
	Params pow.TimeParams

	// Chain, Generator, Writer and FIFO are the collaborators of the
	// permanent prover.
	Chain     Chain
	Generator Generator
	Writer    BlockWriter
	FIFO      Serializer

	// State, when set, records the head stamp checked by the workers.
	State StateRecorder

	// Push, when set, receives every near miss and found proof.
	Push func(found bool, hash string)

	// Metrics, when set, is updated with the activity of the prover.
	Metrics *Metrics
}

// serialize runs task as a GeneratingNextBlock task of the FIFO, or directly
// when no FIFO is configured.
func (cfg *Config) serialize(ctx context.Context, task func(ctx context.Context) error) error {
	if cfg.FIFO == nil {
		return task(ctx)
	}
	return cfg.FIFO.Push(ctx, GeneratingNextBlock, task)
}

// pubkey returns the base58 public key of the node, or an empty string when
// no key pair is configured.
func (cfg *Config) pubkey() string {
	if cfg.KeyPair == nil {
		return ""
	}
	return cfg.KeyPair.PublicKey()
}
