// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"fmt"
	"sync"

	"github.com/decred/dcrd/container/lru"
	"github.com/ucoin/powd/internal/block"
)

// seenHeadsLimit is the number of recent head hashes remembered to ignore
// repeated head notifications.
const seenHeadsLimit = 64

// EventType identifies the kind of a node event.
type EventType int

// Constants for the kinds of node events.
const (
	// HeadChanged indicates a new block was accepted on top of the chain.
	HeadChanged EventType = iota

	// ForkSwitched indicates the node switched to another branch.
	ForkSwitched

	// CPUChanged indicates the operator changed the CPU share.
	CPUChanged

	// PrefixChanged indicates the operator changed the nonce prefix.
	PrefixChanged
)

// eventTypeStrings is a map of event types back to their constant names for
// pretty printing.
var eventTypeStrings = map[EventType]string{
	HeadChanged:   "HeadChanged",
	ForkSwitched:  "ForkSwitched",
	CPUChanged:    "CPUChanged",
	PrefixChanged: "PrefixChanged",
}

// String returns the EventType in human-readable form.
func (t EventType) String() string {
	if s, ok := eventTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Event Type (%d)", int(t))
}

// Event is a node event the prover reacts to.  Block is set for head changes
// and fork switches, CPU and Prefix for the matching setting changes.
type Event struct {
	Type   EventType
	Block  *block.Block
	CPU    float64
	Prefix uint64
}

// Prover is the service gluing node events to the permanent prover.
type Prover struct {
	cfg       *Config
	prover    *BlockProver
	permanent *PermanentProver

	mtx  sync.Mutex
	seen *lru.Set[string]
}

// New returns the prover service for the provided configuration.
func New(cfg *Config) *Prover {
	bp := NewBlockProver(cfg)
	return &Prover{
		cfg:       cfg,
		prover:    bp,
		permanent: NewPermanentProver(cfg, bp),
		seen:      lru.NewSet[string](seenHeadsLimit),
	}
}

// BlockProver returns the block prover of the service.
func (s *Prover) BlockProver() *BlockProver {
	return s.prover
}

// PermanentProver returns the permanent prover of the service.
func (s *Prover) PermanentProver() *PermanentProver {
	return s.permanent
}

// StartService records the current head for the workers and lets the
// permanent prover run until ctx is done.
func (s *Prover) StartService(ctx context.Context) error {
	if s.cfg.State != nil && s.cfg.Chain != nil {
		current, err := s.cfg.Chain.CurrentBlock(ctx)
		if err != nil {
			return err
		}
		if current != nil {
			if err := s.cfg.State.SetCurrent(current.Stamp()); err != nil {
				return err
			}
		}
	}
	log.Infof("Starting the proof-of-work service")
	s.permanent.AllowedToStart(ctx)
	return nil
}

// StopService makes the workers stop and pauses the permanent prover.
func (s *Prover) StopService() error {
	log.Infof("Stopping the proof-of-work service")
	var err error
	if s.cfg.State != nil {
		err = s.cfg.State.Stop()
	}
	s.permanent.StopEverything()
	return err
}

// Handle reacts to a node event.  Head changes are recorded for the workers
// and forwarded to the permanent prover unless the same head was already
// notified.  They wait for the candidate block being assembled, if any.  CPU
// and prefix changes are applied to the workers.
func (s *Prover) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case HeadChanged, ForkSwitched:
		b := ev.Block
		if b != nil && ev.Type == HeadChanged && !s.markSeen(b.Hash) {
			log.Tracef("Ignoring repeated head #%d %s", b.Number, b.Hash)
			return nil
		}
		return s.cfg.serialize(ctx, func(ctx context.Context) error {
			s.applyHead(ev.Type, b)
			return nil
		})

	case CPUChanged:
		_, err := s.prover.ChangeCPU(ev.CPU)
		return err

	case PrefixChanged:
		_, err := s.prover.ChangePoWPrefix(ev.Prefix)
		return err
	}
	return fmt.Errorf("unsupported event type %v", ev.Type)
}

// applyHead records the head for the workers and notifies the permanent
// prover.
func (s *Prover) applyHead(evType EventType, b *block.Block) {
	if b == nil {
		s.permanent.BlockchainChanged(nil)
		return
	}
	log.Debugf("%v to block #%d %s", evType, b.Number, b.Hash)
	if s.cfg.State != nil {
		if err := s.cfg.State.SetCurrent(b.Stamp()); err != nil {
			log.Warnf("Unable to record head #%d: %v", b.Number, err)
		}
	}
	s.permanent.BlockchainChanged(b)
}

// markSeen records the head hash and reports whether it was new.
func (s *Prover) markSeen(hash string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.seen.Contains(hash) {
		return false
	}
	s.seen.Put(hash)
	return true
}
