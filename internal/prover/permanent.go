// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ucoin/powd/internal/block"
)

// PermanentProver is the loop deciding when the node computes the next
// block.  Each round either waits for something to happen or proves a new
// candidate and submits it to the node.  A round computing a block is
// canceled as soon as the head of the chain changes under it.
type PermanentProver struct {
	cfg    *Config
	prover *BlockProver
	loops  atomic.Uint64
	wg     sync.WaitGroup

	mtx          sync.Mutex
	running      bool
	gate         chan struct{}
	gateOpen     bool
	headC        chan struct{}
	anyHeadC     chan struct{}
	lastComputed *block.Block
	selfDelay    bool
}

// NewPermanentProver returns a permanent prover proving with prover.  The
// loop does not run until AllowedToStart is called.
func NewPermanentProver(cfg *Config, prover *BlockProver) *PermanentProver {
	return &PermanentProver{
		cfg:    cfg,
		prover: prover,
		gate:   make(chan struct{}),
	}
}

// AllowedToStart spawns the loop if it is not running and lets it continue
// its rounds.  The loop ends when ctx is done.  Calling it again is harmless.
func (p *PermanentProver) AllowedToStart(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if !p.running {
		p.running = true
		p.wg.Add(1)
		go p.loop(ctx)
	}
	if !p.gateOpen {
		p.gateOpen = true
		close(p.gate)
	}
}

// StopEverything pauses the loop after its current round, cancels the proof
// in progress, ends a waiting round and shuts down the workers.  The loop
// resumes with AllowedToStart.
func (p *PermanentProver) StopEverything() {
	p.mtx.Lock()
	if p.gateOpen {
		p.gate = make(chan struct{})
		p.gateOpen = false
	}
	p.mtx.Unlock()

	p.prover.Cancel()

	p.mtx.Lock()
	p.fireHeadLocked()
	p.fireAnyHeadLocked()
	p.mtx.Unlock()

	p.prover.ShutDown()
}

// BlockchainChanged notifies the prover of a new head.  Unless the head is
// the block the prover itself computed last, the proof in progress is
// canceled and a waiting round ends.
func (p *PermanentProver) BlockchainChanged(b *block.Block) {
	p.mtx.Lock()
	p.fireAnyHeadLocked()
	last := p.lastComputed
	changed := b == nil || last == nil || b.Hash != last.Hash
	if changed {
		p.fireHeadLocked()
	}
	p.mtx.Unlock()

	if changed {
		p.prover.Cancel()
	}
}

// Loops returns the number of rounds run so far.
func (p *PermanentProver) Loops() uint64 {
	return p.loops.Load()
}

// LastComputed returns the last block proven by the loop, if any.
func (p *PermanentProver) LastComputed() *block.Block {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.lastComputed
}

// Wait blocks until the loop spawned by AllowedToStart returned.
func (p *PermanentProver) Wait() {
	p.wg.Wait()
}

func (p *PermanentProver) setLastComputed(b *block.Block) {
	p.mtx.Lock()
	p.lastComputed = b
	p.mtx.Unlock()
}

// fireHeadLocked closes the head changed signal of the current round.
//
// This function MUST be called with the mutex held (for writes).
func (p *PermanentProver) fireHeadLocked() {
	if p.headC != nil {
		close(p.headC)
		p.headC = nil
	}
}

// fireAnyHeadLocked closes the head notified signal of the current round.
//
// This function MUST be called with the mutex held (for writes).
func (p *PermanentProver) fireAnyHeadLocked() {
	if p.anyHeadC != nil {
		close(p.anyHeadC)
		p.anyHeadC = nil
	}
}

// armSignals creates the one-shot signals of a new round.  Signals of a
// previous round that never fired are dropped.
func (p *PermanentProver) armSignals() (headC, anyHeadC <-chan struct{}) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.headC = make(chan struct{})
	p.anyHeadC = make(chan struct{})
	return p.headC, p.anyHeadC
}

// loop runs rounds for as long as ctx is not done, blocking between rounds
// while the gate is closed.
//
// It must be run as a goroutine.
func (p *PermanentProver) loop(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		p.mtx.Lock()
		p.running = false
		p.mtx.Unlock()
	}()

	log.Trace("Permanent prover started")
	for {
		p.mtx.Lock()
		gate := p.gate
		p.mtx.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			log.Trace("Permanent prover done")
			return
		}

		p.round(ctx)

		loops := p.loops.Add(1)
		p.cfg.Metrics.loop()
		log.Tracef("PoW loops = %d", loops)
	}
}

// round runs a single iteration of the loop.  Panics are recovered so that
// the loop never dies.
func (p *PermanentProver) round(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Unexpected failure of a proof-of-work round: %v", r)
		}
	}()

	headC, anyHeadC := p.armSignals()
	p.mtx.Lock()
	stopped := !p.gateOpen
	p.mtx.Unlock()
	if stopped {
		return
	}

	doProof, delayC, err := p.decide(ctx)
	if err != nil {
		log.Warn(err)
	}
	if !doProof {
		p.wait(ctx, headC, delayC)
		return
	}
	p.compute(ctx, headC, anyHeadC)
}

// decide reports whether the round proves a block.  When the head was issued
// by the node itself, a first round waits for the configured delay on the
// returned channel.
func (p *PermanentProver) decide(ctx context.Context) (bool, <-chan time.Time, error) {
	pub := p.cfg.pubkey()
	if pub == "" {
		return false, nil, makeError(ErrNoSelfPubkey, "No self pubkey found.")
	}
	isMember, err := p.cfg.Chain.IsMember(ctx, pub)
	if err != nil {
		return false, nil, err
	}
	if !isMember {
		return false, nil, makeError(ErrNotMember, "Local node is not a "+
			"member. Waiting to be a member before computing a block.")
	}
	current, err := p.currentBlock(ctx)
	if err != nil {
		return false, nil, err
	}
	trial, err := p.cfg.Chain.PersonalizedDifficulty(ctx, pub)
	if err != nil {
		return false, nil, err
	}
	if err := p.checkTrialIsNotTooHigh(trial, current, pub); err != nil {
		return false, nil, err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if current.Issuer == pub && !p.selfDelay {
		p.selfDelay = true
		log.Warnf("Waiting %v before starting to compute next block...",
			p.cfg.PowDelay)
		return false, time.After(p.cfg.PowDelay), nil
	}
	p.selfDelay = false
	return true, nil, nil
}

// currentBlock returns the head of the chain or ErrNoRootBlock.
func (p *PermanentProver) currentBlock(ctx context.Context) (*block.Block, error) {
	current, err := p.cfg.Chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, makeError(ErrNoRootBlock, "Waiting for a root block "+
			"before computing new blocks")
	}
	return current, nil
}

func (p *PermanentProver) checkTrialIsNotTooHigh(trial uint32, current *block.Block, pub string) error {
	if uint64(trial) > uint64(current.PowMin)+uint64(p.cfg.PowMaxHandicap) {
		log.Debugf("Trial = %d, powMin = %d, pubkey = %s", trial,
			current.PowMin, shortKey(pub))
		return makeError(ErrTooHighDifficulty, "Too high difficulty: "+
			"waiting for other members to write next block")
	}
	return nil
}

// securityDelay returns the longest a round may wait for a signal.
func (p *PermanentProver) securityDelay() time.Duration {
	if p.cfg.PowSecurityRetryDelay > 0 {
		return p.cfg.PowSecurityRetryDelay
	}
	return DefaultPowSecurityRetryDelay
}

// wait ends on the first of the delay, a head change or the security delay.
func (p *PermanentProver) wait(ctx context.Context, headC <-chan struct{}, delayC <-chan time.Time) {
	security := time.NewTimer(p.securityDelay())
	defer security.Stop()

	select {
	case <-delayC:
	case <-headC:
		log.Info("Blockchain changed!")
	case <-security.C:
		log.Warn("Security trigger: proof-of-work process seems stuck")
	case <-ctx.Done():
	}
}

// compute proves the next block and submits it to the node.  The proof is
// canceled when headC fires.
func (p *PermanentProver) compute(ctx context.Context, headC, anyHeadC <-chan struct{}) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelTriggered atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-headC:
			cancelTriggered.Store(true)
			cancel()
			p.prover.Cancel()
		case <-done:
		}
	}()
	canceled := func() error {
		if cancelTriggered.Load() {
			return makeError(ErrProofCanceled, proofCanceledMsg)
		}
		return nil
	}

	pub := p.cfg.pubkey()
	var candidate *block.Block
	var trial uint32
	err := p.cfg.serialize(roundCtx, func(ctx context.Context) error {
		current, err := p.currentBlock(ctx)
		if err != nil {
			return err
		}
		if err := canceled(); err != nil {
			return err
		}
		trial, err = p.cfg.Chain.PersonalizedDifficulty(ctx, pub)
		if err != nil {
			return err
		}
		if err := p.checkTrialIsNotTooHigh(trial, current, pub); err != nil {
			return err
		}
		if err := canceled(); err != nil {
			return err
		}
		candidate, err = p.cfg.Generator.NextBlock(ctx, nil)
		return err
	})
	if err == nil {
		err = canceled()
	}
	if err != nil {
		if errors.Is(err, ErrProofCanceled) || errors.Is(err, context.Canceled) {
			log.Warnf("The proof-of-work generation was canceled: %v", err)
		} else {
			log.Warnf("Unable to generate the next block: %v", err)
		}
		return
	}

	proven, err := p.prover.Prove(roundCtx, candidate, trial, 0)
	if err != nil {
		log.Warnf("The proof-of-work generation was canceled: %v", err)
		return
	}
	p.setLastComputed(proven)
	if p.cfg.State != nil {
		if err := p.cfg.State.SetLastProven(proven.Hash); err != nil {
			log.Warnf("Unable to record the last proven block: %v", err)
		}
	}

	if err := p.submit(ctx, proven); err != nil {
		p.cfg.Metrics.submissionFailed()
		log.Warnf("Proof-of-work self-submission: %v", err)
		return
	}

	// Let the next round see the new head.
	security := time.NewTimer(p.securityDelay())
	defer security.Stop()
	select {
	case <-anyHeadC:
	case <-security.C:
		log.Warn("Security trigger: no head notification after " +
			"self-submission")
	case <-ctx.Done():
	}
}

// submit checks the proven block and writes it to the node.
func (p *PermanentProver) submit(ctx context.Context, b *block.Block) error {
	if err := b.CheckProof(); err != nil {
		str := fmt.Sprintf("block #%d has an invalid proof: %v", b.Number, err)
		return makeError(ErrInvalidProof, str)
	}
	if err := p.cfg.Writer.WriteBlock(ctx, b); err != nil {
		str := fmt.Sprintf("block #%d rejected: %v", b.Number, err)
		return makeError(ErrSelfSubmission, str)
	}
	log.Infof("Block #%d %s submitted", b.Number, b.Hash)
	return nil
}
