// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/keypair"
	"github.com/ucoin/powd/internal/pow"
)

// checkProven ensures the block carries a consistent proof signed by the test
// key that satisfies the difficulty.
func checkProven(t *testing.T, b *block.Block, difficulty uint32) {
	t.Helper()
	if !pow.EncodeDifficulty(difficulty).Check(b.Hash) {
		t.Fatalf("hash %s does not satisfy difficulty %d", b.Hash, difficulty)
	}
	if err := b.CheckProof(); err != nil {
		t.Fatalf("inconsistent proof: %v", err)
	}
	payload := block.ProofPayload(b.InnerHash, b.Nonce)
	if !keypair.Verify(payload, b.Signature, testPub) {
		t.Fatal("proof signature does not verify")
	}
}

// TestProveFixedTime ensures a single worker with a forced time proves a block
// deterministically with the configured prefix, reaching the expected nonce
// and hash.
func TestProveFixedTime(t *testing.T) {
	t.Parallel()

	const (
		wantNonce = 340000000000027
		wantHash  = "02119C4DC7CAB6028273592845BD2D91E04D4DC731213A5C00FBB9DC57C15542"
	)
	cfg, _, _, _ := testConfig(t)
	cfg.Prefix = 34
	p := NewBlockProver(cfg)
	defer p.ShutDown()

	var proofs []*block.Block
	for i := 0; i < 2; i++ {
		b := &block.Block{Number: 35, Issuer: testPub}
		proven, err := p.Prove(context.Background(), b, 24, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		checkProven(t, proven, 24)
		if proven.Nonce != wantNonce || proven.Hash != wantHash {
			t.Fatalf("unexpected proof: got %d %s, want %d %s",
				proven.Nonce, proven.Hash, wantNonce, wantHash)
		}
		if proven.Time != 1 {
			t.Fatalf("forced time not applied: %d", proven.Time)
		}
		if proven.PowMin != 0 {
			t.Fatalf("minimum difficulty of a non root block changed: %d",
				proven.PowMin)
		}
		proofs = append(proofs, proven)
	}
	if proofs[0].Nonce != proofs[1].Nonce || proofs[0].Hash != proofs[1].Hash {
		t.Fatalf("proofs differ: %d %s and %d %s", proofs[0].Nonce,
			proofs[0].Hash, proofs[1].Nonce, proofs[1].Hash)
	}
}

// TestProveRootBlock ensures a root block carries the difficulty it was
// proven at and uses its time as median time.
func TestProveRootBlock(t *testing.T) {
	t.Parallel()

	cfg, _, _, _ := testConfig(t)
	p := NewBlockProver(cfg)
	defer p.ShutDown()

	proven, err := p.Prove(context.Background(), &block.Block{}, 20, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkProven(t, proven, 20)
	if proven.PowMin != 20 {
		t.Fatalf("unexpected root minimum difficulty %d", proven.PowMin)
	}
	if proven.Time != 5 || proven.MedianTime != 5 {
		t.Fatalf("unexpected root times %d/%d", proven.Time, proven.MedianTime)
	}
	if proven.Issuer != testPub {
		t.Fatalf("unexpected issuer %s", proven.Issuer)
	}
}

// TestProvePrefixPlacement ensures the highest prefix is placed in the
// high-order digits of the nonce.
func TestProvePrefixPlacement(t *testing.T) {
	t.Parallel()

	cfg, _, _, _ := testConfig(t)
	cfg.Prefix = 899
	p := NewBlockProver(cfg)
	defer p.ShutDown()

	proven, err := p.Prove(context.Background(), &block.Block{Number: 35}, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proven.Nonce < 8990000000000001 || proven.Nonce > 8990000000001000 {
		t.Fatalf("nonce %d is not right after 8990000000000000", proven.Nonce)
	}
}

// TestProveCancel ensures canceling a computation makes it fail with the
// cancellation error.
func TestProveCancel(t *testing.T) {
	t.Parallel()

	cfg, _, _, _ := testConfig(t)
	p := NewBlockProver(cfg)
	defer p.ShutDown()
	p.Cancel()

	errC := make(chan error, 1)
	go func() {
		_, err := p.Prove(context.Background(), &block.Block{Number: 35}, 70, 0)
		errC <- err
	}()
	waitFor(t, "computation start", p.IsComputing)
	p.Cancel()

	select {
	case err := <-errC:
		if !errors.Is(err, ErrProofCanceled) {
			t.Fatalf("unexpected error: got %v, want %v", err,
				ErrProofCanceled)
		}
		want := "Proof-of-work computation canceled because block received"
		if err.Error() != want {
			t.Fatalf("unexpected message: got %q, want %q", err.Error(), want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("canceled computation did not return")
	}
}

// TestProveNoKeyPair ensures a prover without key pair refuses to prove.
func TestProveNoKeyPair(t *testing.T) {
	t.Parallel()

	cfg, _, _, _ := testConfig(t)
	cfg.KeyPair = nil
	_, err := NewBlockProver(cfg).Prove(context.Background(),
		&block.Block{Number: 35}, 1, 0)
	if !errors.Is(err, ErrNoSelfPubkey) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrNoSelfPubkey)
	}
}

// TestChangeSettings ensures CPU and prefix changes reach the workers and
// invalid ones are rejected.
func TestChangeSettings(t *testing.T) {
	t.Parallel()

	cfg, _, _, _ := testConfig(t)
	p := NewBlockProver(cfg)
	defer p.ShutDown()

	settings, err := p.ChangeCPU(0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.CPU != 0.3 || p.currentFarm().CPU() != 0.3 {
		t.Fatalf("cpu change not applied: %+v", settings)
	}
	if _, err := p.ChangeCPU(2); !errors.Is(err, pow.ErrInvalidConfig) {
		t.Fatalf("unexpected error: got %v, want %v", err, pow.ErrInvalidConfig)
	}
	if _, err := p.ChangePoWPrefix(900); !errors.Is(err, pow.ErrInvalidConfig) {
		t.Fatalf("unexpected error: got %v, want %v", err, pow.ErrInvalidConfig)
	}
	if _, err := p.ChangeCPU(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.ChangePoWPrefix(12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proven, err := p.Prove(context.Background(), &block.Block{Number: 35}, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proven.Nonce/10000000000000 != 12 {
		t.Fatalf("nonce %d does not carry prefix 12", proven.Nonce)
	}

	// Settings survive the farm being recreated.
	p.ShutDown()
	proven, err = p.Prove(context.Background(), &block.Block{Number: 35}, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proven.Nonce/10000000000000 != 12 {
		t.Fatalf("nonce %d does not carry prefix 12 after restart",
			proven.Nonce)
	}
}

// TestProvePushesResult ensures the found proof is pushed to observers.
func TestProvePushesResult(t *testing.T) {
	t.Parallel()

	type pushed struct {
		found bool
		hash  string
	}
	var mtx sync.Mutex
	var events []pushed
	cfg, _, _, _ := testConfig(t)
	cfg.Push = func(found bool, hash string) {
		mtx.Lock()
		events = append(events, pushed{found, hash})
		mtx.Unlock()
	}
	p := NewBlockProver(cfg)
	defer p.ShutDown()

	proven, err := p.Prove(context.Background(), &block.Block{Number: 35}, 24, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.handleNotification(&pow.Notification{
		Type:  pow.NTNearMiss,
		Hash:  "000A",
		Zeros: 3,
	})

	mtx.Lock()
	defer mtx.Unlock()
	if len(events) < 2 {
		t.Fatalf("unexpected pushed events %v", events)
	}
	var foundEvents int
	for _, ev := range events {
		if ev.found {
			foundEvents++
			if ev.hash != proven.Hash {
				t.Fatalf("pushed hash %s, want %s", ev.hash, proven.Hash)
			}
		}
	}
	if foundEvents != 1 {
		t.Fatalf("unexpected number of found events %d", foundEvents)
	}
	if last := events[len(events)-1]; last.found || last.hash != "000A" {
		t.Fatalf("unexpected near miss event %+v", last)
	}
}
