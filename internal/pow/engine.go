// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// engine is the pool of worker goroutines a farm dispatches its searches to.
type engine struct {
	workers []*worker
	cpu     func() float64
	notify  func(*Notification)
	state   HeadStamper
	quit    chan struct{}
	g       errgroup.Group
}

// newEngine spawns nbWorkers worker goroutines.
func newEngine(nbWorkers int, cpu func() float64, notify func(*Notification),
	state HeadStamper) *engine {

	e := &engine{
		cpu:    cpu,
		notify: notify,
		state:  state,
		quit:   make(chan struct{}),
	}
	for i := 0; i < nbWorkers; i++ {
		w := &worker{
			index:          i,
			nonceBeginning: NonceBeginning(i, nbWorkers),
			jobs:           make(chan *job),
			eng:            e,
		}
		e.workers = append(e.workers, w)
		log.Debugf("Creating worker #%d (nonces from %d)", i, w.nonceBeginning)
		e.g.Go(func() error { return w.run(e.quit) })
	}
	return e
}

// prove dispatches the request to every worker and waits for all of them to
// acknowledge the job.  The first proof found cancels the other workers.
// ErrCanceled is returned when no worker found a proof.
func (e *engine) prove(ctx context.Context, req *Request, prefix uint64) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan searchResult, len(e.workers))
	j := &job{
		id:      uuid.New().String(),
		ctx:     ctx,
		req:     req,
		prefix:  prefix,
		results: results,
	}
	log.Debugf("Starting job %s for block #%d on %d workers", j.id,
		req.Block.Number, len(e.workers))

	dispatched := 0
	for _, w := range e.workers {
		select {
		case w.jobs <- j:
			dispatched++
		case <-e.quit:
		}
	}

	var found *Result
	for i := 0; i < dispatched; i++ {
		res := <-results
		if res.block == nil || found != nil {
			continue
		}
		found = &Result{
			Block:      res.block,
			TestsCount: res.tests,
			Worker:     res.worker,
		}
		cancel()
	}
	if found == nil {
		str := fmt.Sprintf("proof-of-work search for block #%d canceled",
			req.Block.Number)
		return nil, makeError(ErrCanceled, str)
	}
	log.Debugf("Job %s found %s by worker #%d", j.id, found.Block.Hash,
		found.Worker)
	return found, nil
}

// stop terminates every worker goroutine.  It must not be called while a
// search is in progress.
func (e *engine) stop() {
	close(e.quit)
	_ = e.g.Wait()
}
