// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/prover"
)

// topicHead is the bus topic heads received from the node are published on.
const topicHead = "chain:head"

// headRouter turns the heads published on its bus into prover events.  A head
// that does not extend the previous one is reported as a fork switch.
//
// Heads are handled one at a time in publication order.
type headRouter struct {
	ctx     context.Context
	bus     EventBus.Bus
	handle  func(context.Context, prover.Event) error
	handler func(*block.Block)

	mtx  sync.Mutex
	last *block.Block
}

// newHeadRouter returns a router passing the events to handle until ctx is
// done.
func newHeadRouter(ctx context.Context, handle func(context.Context, prover.Event) error) (*headRouter, error) {
	r := &headRouter{ctx: ctx, bus: EventBus.New(), handle: handle}
	r.handler = r.onHead
	if err := r.bus.SubscribeAsync(topicHead, r.handler, true); err != nil {
		return nil, err
	}
	return r, nil
}

// publish queues a head received from the node.
func (r *headRouter) publish(b *block.Block) {
	r.bus.Publish(topicHead, b)
}

// onHead classifies a head against the previous one and passes it on.
func (r *headRouter) onHead(b *block.Block) {
	r.mtx.Lock()
	last := r.last
	r.last = b
	r.mtx.Unlock()

	evType := prover.HeadChanged
	if last != nil && b.Hash != last.Hash && b.PreviousHash != last.Hash {
		powdLog.Infof("Switched from %s to the fork of %s", last.Stamp(),
			b.Stamp())
		evType = prover.ForkSwitched
	}
	ev := prover.Event{Type: evType, Block: b}
	if err := r.handle(r.ctx, ev); err != nil {
		powdLog.Warnf("Unable to handle head %s: %v", b.Stamp(), err)
	}
}

// close waits for the queued heads to be handled and stops routing.
func (r *headRouter) close() {
	r.bus.WaitAsync()
	if err := r.bus.Unsubscribe(topicHead, r.handler); err != nil {
		powdLog.Debugf("Unable to unsubscribe from heads: %v", err)
	}
}
