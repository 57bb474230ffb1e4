// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ucoin/powd/internal/block"
)

const (
	// initialTurnDuration is the duration of the first turn of a search.
	// Short turns at the start make the first block time and stop checks
	// happen quickly.
	initialTurnDuration = 20 * time.Millisecond

	// turnDurationStep is added to the turn duration after every turn.
	turnDurationStep = time.Millisecond

	// maxTurnDuration is the longest a turn may last.
	maxTurnDuration = time.Second

	// hashesPerCheck is the number of hashes computed between two checks
	// of the cancellation signal and of the end of the hashing part of a
	// turn.
	hashesPerCheck = 16

	// minimalZerosToShow is the least number of leading zeros a hash must
	// have to be reported as a near miss.
	minimalZerosToShow = 2
)

// Signer signs proof payloads on behalf of the issuer of the block.
type Signer interface {
	Sign(msg string) string
}

// HeadStamper provides the "number-hash" stamp of the head the node currently
// builds upon.  A present but empty stamp means proving must stop.
type HeadStamper interface {
	Current() (stamp string, ok bool, err error)
}

// Request describes a proof to search for.
type Request struct {
	// Block is the candidate to prove.  It is never modified; workers
	// operate on their own copy.
	Block *block.Block

	// Target is the pattern the block hash must match.
	Target Target

	// Signer signs the proof payload of each nonce.
	Signer Signer

	// ForcedTime, when non-zero, is used as the block time instead of the
	// time derived from the clock.
	ForcedTime int64

	// Params bounds the time of the block.
	Params TimeParams
}

// Result is a proven block along with the statistics of the worker that
// found it.
type Result struct {
	Block      *block.Block
	TestsCount uint64
	Worker     int
}

// searchResult is the acknowledgment a worker sends at the end of a job.  A
// nil block means the worker stopped without a proof.
type searchResult struct {
	worker int
	block  *block.Block
	tests  uint64
}

// job is a search dispatched to every worker of the engine.
type job struct {
	id      string
	ctx     context.Context
	req     *Request
	prefix  uint64
	results chan<- searchResult
}

// worker is a single hash search goroutine owning a chunk of the nonce space.
type worker struct {
	index          int
	nonceBeginning uint64
	jobs           chan *job
	eng            *engine
}

// run waits for jobs until quit is closed.  Every job received is
// acknowledged exactly once on its results channel.
//
// It must be run as a goroutine.
func (w *worker) run(quit <-chan struct{}) error {
	log.Tracef("Worker #%d started", w.index)
	for {
		select {
		case j := <-w.jobs:
			j.results <- w.search(j)
		case <-quit:
			log.Tracef("Worker #%d done", w.index)
			return nil
		}
	}
}

// search hashes the candidate of the job in turns until a proof is found, the
// job is canceled or the head stamp shows the candidate is stale.
func (w *worker) search(j *job) searchResult {
	ctx, req := j.ctx, j.req
	b := req.Block.Clone()
	res := searchResult{worker: w.index}
	turnDuration := initialTurnDuration
	var counter uint64

	timer := time.NewTimer(maxTurnDuration)
	timer.Stop()
	defer timer.Stop()

	for turn := 0; ; turn++ {
		if ctx.Err() != nil {
			return res
		}
		turnStart := time.Now()
		b.Time = BlockTime(b, req.Params, req.ForcedTime, turnStart.Unix())
		if b.Number == 0 {
			b.MedianTime = b.Time
		}
		b.InnerHash = b.ComputeInnerHash()
		hashUntil := turnStart.Add(time.Duration(float64(turnDuration) *
			w.eng.cpu()))

		for i := 1; ; i++ {
			counter++
			b.Nonce = j.prefix + w.nonceBeginning + counter
			payload := block.ProofPayload(b.InnerHash, b.Nonce)
			sig := req.Signer.Sign(payload)
			hash := block.ProofHash(payload, sig)
			res.tests++
			if req.Target.Check(hash) {
				b.Signature = sig
				b.Hash = hash
				res.block = b
				log.Debugf("Worker #%d found %s for job %s at turn %d",
					w.index, hash, j.id, turn)
				return res
			}
			if req.Target.Zeros > 0 && LeadingZeros(hash) >= minimalZerosToShow {
				w.eng.notify(&Notification{
					Type:   NTNearMiss,
					Hash:   hash,
					Number: b.Number,
					Nonce:  b.Nonce,
					Issuer: b.Issuer,
				})
			}
			if i%hashesPerCheck == 0 {
				if ctx.Err() != nil {
					return res
				}
				if !time.Now().Before(hashUntil) {
					break
				}
			}
		}

		// Rest for the remaining part of the turn.
		if rest := time.Until(turnStart.Add(turnDuration)); rest > 0 {
			timer.Reset(rest)
			select {
			case <-ctx.Done():
				return res
			case <-timer.C:
			}
		}

		if w.stale(b) {
			log.Debugf("Worker #%d stops job %s: block #%d no longer "+
				"extends the current head", w.index, j.id, b.Number)
			return res
		}

		turnDuration = min(turnDuration+turnDurationStep, maxTurnDuration)
	}
}

// stale reports whether the recorded head stamp shows the candidate no
// longer extends the head, or that proving was stopped.
func (w *worker) stale(b *block.Block) bool {
	state := w.eng.state
	if state == nil {
		return false
	}
	stamp, ok, err := state.Current()
	if err != nil {
		w.eng.notify(&Notification{
			Type:   NTWorkerError,
			Number: b.Number,
			Err:    fmt.Errorf("worker #%d: %w", w.index, err),
		})
		return false
	}
	if !ok {
		return false
	}
	if stamp == "" {
		return true
	}
	number, hash, found := strings.Cut(stamp, "-")
	if !found {
		return false
	}
	n, err := strconv.ParseUint(number, 10, 32)
	if err != nil {
		return false
	}
	return uint64(b.Number) != n+1 || b.PreviousHash != hash
}
