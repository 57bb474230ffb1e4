// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prover

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/pow"
)

// proofCanceledMsg is the description of ErrProofCanceled errors.
const proofCanceledMsg = "Proof-of-work computation canceled because block received"

// BlockProver proves candidate blocks on a lazily created worker farm.
type BlockProver struct {
	cfg *Config

	mtx    sync.Mutex
	farm   *pow.Farm
	cpu    float64
	prefix uint64
}

// NewBlockProver returns a block prover for the provided configuration.  No
// worker is spawned until the first proof.
func NewBlockProver(cfg *Config) *BlockProver {
	cpu := cfg.CPU
	if cpu == 0 {
		cpu = DefaultCPU
	}
	return &BlockProver{cfg: cfg, cpu: cpu, prefix: cfg.Prefix}
}

// getWorker returns the worker farm, creating it as needed.
func (p *BlockProver) getWorker() (*pow.Farm, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.farm != nil {
		return p.farm, nil
	}
	nbCores := p.cfg.NbCores
	if nbCores < 1 {
		nbCores = 1
	}
	var state pow.HeadStamper
	if p.cfg.State != nil {
		state = p.cfg.State
	}
	farm, err := pow.NewFarm(&pow.FarmConfig{
		NbWorkers: nbCores,
		CPU:       p.cpu,
		Prefix:    p.prefix,
		PowState:  state,
		Notify:    p.handleNotification,
	})
	if err != nil {
		return nil, err
	}
	p.farm = farm
	return farm, nil
}

// currentFarm returns the farm if it was created.
func (p *BlockProver) currentFarm() *pow.Farm {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.farm
}

// IsComputing reports whether a proof computation is in progress.
func (p *BlockProver) IsComputing() bool {
	farm := p.currentFarm()
	return farm != nil && farm.IsComputing()
}

// Prove searches a proof for the candidate block at the provided difficulty
// level and returns the proven block.  The candidate of a root block carries
// the difficulty as its minimum difficulty.  A non-zero forcedTime is used as
// the block time.
//
// ErrProofCanceled is returned when the computation is canceled before a
// proof is found.
func (p *BlockProver) Prove(ctx context.Context, b *block.Block, difficulty uint32, forcedTime int64) (*block.Block, error) {
	if p.cfg.KeyPair == nil {
		return nil, makeError(ErrNoSelfPubkey, "No self pubkey found.")
	}
	farm, err := p.getWorker()
	if err != nil {
		return nil, err
	}

	target := pow.EncodeDifficulty(difficulty)
	if b.Number == 0 {
		b.PowMin = difficulty
	}
	if b.Issuer == "" {
		b.Issuer = p.cfg.pubkey()
	}
	b.Nonce = 0
	log.Infof("Generating proof-of-work with %d leading zeros followed by "+
		"[0-%s]... (CPU usage set to %.0f%%) for block#%d %s", target.Zeros,
		target.HighMark(), farm.CPU()*100, b.Number, shortKey(b.Issuer))

	p.cfg.Metrics.setComputing(true)
	start := time.Now()
	res, err := farm.AskNewProof(ctx, &pow.Request{
		Block:      b,
		Target:     target,
		Signer:     p.cfg.KeyPair,
		ForcedTime: forcedTime,
		Params:     p.cfg.Params,
	})
	p.cfg.Metrics.setComputing(false)
	if errors.Is(err, pow.ErrCanceled) || errors.Is(err, pow.ErrFarmShutDown) {
		log.Infof("GIVEN proof-of-work for block#%d with %d leading zeros "+
			"followed by [0-%s]! stop PoW for %s", b.Number, target.Zeros,
			target.HighMark(), shortKey(p.cfg.pubkey()))
		p.cfg.Metrics.canceled()
		return nil, makeError(ErrProofCanceled, proofCanceledMsg)
	}
	if err != nil {
		return nil, err
	}

	proof := res.Block
	elapsed := time.Since(start).Seconds()
	var testsPerSecond float64
	if elapsed > 0 {
		testsPerSecond = float64(res.TestsCount) *
			float64(farm.NbWorkers()) / elapsed
	}
	log.Infof("Done: #%d, %s in %.2fs (%d tests, ~%.2f tests/s)", proof.Number,
		proof.Hash, elapsed, res.TestsCount, testsPerSecond)
	log.Infof("FOUND proof-of-work with %d leading zeros followed by [0-%s]!",
		target.Zeros, target.HighMark())
	p.cfg.Metrics.found(testsPerSecond)
	return proof, nil
}

// Cancel stops the computation in progress, if any, and returns once the
// workers stopped.  It is a no-op when nothing is being computed.
func (p *BlockProver) Cancel() {
	if farm := p.currentFarm(); farm != nil {
		farm.Cancel()
	}
}

// ChangeCPU updates the share of CPU time spent hashing, including by a
// computation in progress.
func (p *BlockProver) ChangeCPU(cpu float64) (pow.Settings, error) {
	farm, err := p.getWorker()
	if err != nil {
		return pow.Settings{}, err
	}
	settings, err := farm.Configure(&cpu, nil)
	if err != nil {
		return pow.Settings{}, err
	}
	p.mtx.Lock()
	p.cpu = settings.CPU
	p.mtx.Unlock()
	return settings, nil
}

// ChangePoWPrefix updates the nonce prefix used by the next computations.
func (p *BlockProver) ChangePoWPrefix(prefix uint64) (pow.Settings, error) {
	farm, err := p.getWorker()
	if err != nil {
		return pow.Settings{}, err
	}
	settings, err := farm.Configure(nil, &prefix)
	if err != nil {
		return pow.Settings{}, err
	}
	p.mtx.Lock()
	p.prefix = settings.Prefix
	p.mtx.Unlock()
	return settings, nil
}

// ShutDown terminates the worker farm.  A later proof creates a new one.
func (p *BlockProver) ShutDown() {
	p.mtx.Lock()
	farm := p.farm
	p.farm = nil
	p.mtx.Unlock()
	if farm != nil {
		farm.ShutDown()
	}
}

// handleNotification logs noteworthy near misses and forwards near misses
// and found proofs to the push channel.
func (p *BlockProver) handleNotification(n *pow.Notification) {
	switch n.Type {
	case pow.NTNearMiss:
		p.cfg.Metrics.nearMiss()
		zeros := p.cfg.NearMissZeros
		if zeros == 0 {
			zeros = DefaultNearMissZeros
		}
		if n.Zeros >= zeros {
			log.Infof("Matched %d zeros %s with Nonce = %d for block#%d by %s",
				n.Zeros, n.Hash, n.Nonce, n.Number, shortKey(n.Issuer))
		}
		p.push(false, n.Hash)

	case pow.NTFound:
		p.push(true, n.Hash)

	case pow.NTWorkerError:
		log.Warnf("Worker error while proving block#%d: %v", n.Number, n.Err)
	}
}

func (p *BlockProver) push(found bool, hash string) {
	if p.cfg.Push != nil {
		p.cfg.Push(found, hash)
	}
}

// shortKey returns the first characters of a public key for log messages.
func shortKey(pubkey string) string {
	if len(pubkey) > 6 {
		return pubkey[:6]
	}
	return pubkey
}
