// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/fifo"
	"github.com/ucoin/powd/internal/keypair"
	"github.com/ucoin/powd/internal/pow"
)

const (
	testPub = "HgTTJLAQ5sqfknMq7yLPZbehtuLSsKj9CxWN7k8QvYJd"
	testSec = "51w4fEShBk1jCMauWu4mLpmDVfHksKmWcygpxriqCEZizbtERA6de4STKRkQBpxmMUwsKXRjSzuQ8ECwmqN1u2DP"

	otherPub = "3AF7bhGQRt6ymcBZgZTBMoDsEtSwruSarjNG8kDnaueX"

	// unreachableDifficulty requires more zeros than a hash has digits.
	unreachableDifficulty = 16 * 64
)

// powTimeParams are the time parameters of the test currency.
var powTimeParams = pow.TimeParams{AvgGenTime: 300, MedianTimeBlocks: 20}

// fakeChain is a Chain whose state is set by the tests.
type fakeChain struct {
	mtx     sync.Mutex
	current *block.Block
	member  bool
	trial   uint32
}

func (c *fakeChain) CurrentBlock(context.Context) (*block.Block, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.current == nil {
		return nil, nil
	}
	return c.current.Clone(), nil
}

func (c *fakeChain) IsMember(_ context.Context, pubkey string) (bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.member && pubkey == testPub, nil
}

func (c *fakeChain) PersonalizedDifficulty(context.Context, string) (uint32, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.trial, nil
}

func (c *fakeChain) setCurrent(b *block.Block) {
	c.mtx.Lock()
	c.current = b.Clone()
	c.mtx.Unlock()
}

// fakeGenerator assembles empty blocks on top of the fake chain head.
type fakeGenerator struct {
	chain *fakeChain
	calls atomic.Int32
}

func (g *fakeGenerator) NextBlock(ctx context.Context, overrides *block.Overrides) (*block.Block, error) {
	g.calls.Add(1)
	current, err := g.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	b := &block.Block{
		Currency:     current.Currency,
		Number:       current.Number + 1,
		PowMin:       current.PowMin,
		MedianTime:   current.MedianTime,
		Issuer:       testPub,
		PreviousHash: current.Hash,
	}
	if overrides != nil && overrides.MedianTime != 0 {
		b.MedianTime = overrides.MedianTime
	}
	return b, nil
}

// fakeWriter records written blocks.
type fakeWriter struct {
	mtx     sync.Mutex
	blocks  []*block.Block
	err     error
	onWrite func(b *block.Block)
}

func (w *fakeWriter) WriteBlock(_ context.Context, b *block.Block) error {
	w.mtx.Lock()
	if w.err != nil {
		w.mtx.Unlock()
		return w.err
	}
	w.blocks = append(w.blocks, b)
	onWrite := w.onWrite
	w.mtx.Unlock()
	if onWrite != nil {
		onWrite(b)
	}
	return nil
}

func (w *fakeWriter) written() []*block.Block {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return append([]*block.Block(nil), w.blocks...)
}

func testKeyPair(t *testing.T) *keypair.KeyPair {
	t.Helper()
	kp, err := keypair.FromBase58(testPub, testSec)
	if err != nil {
		t.Fatalf("unable to decode test key pair: %v", err)
	}
	return kp
}

// testConfig returns a configuration proving with a single worker at full
// speed on top of a fake chain whose head is block #34.
func testConfig(t *testing.T) (*Config, *fakeChain, *fakeGenerator, *fakeWriter) {
	t.Helper()
	chain := &fakeChain{
		current: &block.Block{
			Number:     34,
			PowMin:     20,
			MedianTime: 1500000000,
			Issuer:     otherPub,
			Hash:       "00AB",
		},
		member: true,
		trial:  20,
	}
	gen := &fakeGenerator{chain: chain}
	writer := &fakeWriter{}
	cfg := &Config{
		KeyPair:               testKeyPair(t),
		CPU:                   1,
		NbCores:               1,
		PowSecurityRetryDelay: 10 * time.Second,
		PowMaxHandicap:        DefaultPowMaxHandicap,
		Params:                powTimeParams,
		Chain:                 chain,
		Generator:             gen,
		Writer:                writer,
		FIFO:                  &fifo.Queue{},
	}
	return cfg, chain, gen, writer
}

// waitFor polls cond until it holds or fails the test after a few seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
