// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fifo provides named single-flight task queues.  Tasks pushed under
// the same name run one at a time in arrival order while tasks of different
// names run independently.
package fifo

import (
	"context"
	"sync"
)

// Queue serializes tasks by name.  The zero value is ready to use.
type Queue struct {
	mtx   sync.Mutex
	slots map[string]chan struct{}
}

// slot returns the semaphore of the named queue, creating it as needed.
func (q *Queue) slot(name string) chan struct{} {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.slots == nil {
		q.slots = make(map[string]chan struct{})
	}
	s, ok := q.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		q.slots[name] = s
	}
	return s
}

// Push waits for every task previously pushed under name to complete, runs
// task and returns its error.  The wait is abandoned with the context error
// when ctx is done before the task could start.
//
// This function is safe for concurrent access.
func (q *Queue) Push(ctx context.Context, name string, task func(ctx context.Context) error) error {
	s := q.slot(name)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		log.Tracef("Task %q abandoned while queued: %v", name, ctx.Err())
		return ctx.Err()
	}
	defer func() { <-s }()

	log.Tracef("Running task %q", name)
	return task(ctx)
}
