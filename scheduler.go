// scheduler.go: Deferred execution after the current unit of work
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import "sync"

// Scheduler runs callbacks once the current synchronous unit of work is over.
// Implementations must run callbacks on the goroutine that owns the objects
// using them.
type Scheduler interface {
	Defer(fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func())

// Defer implements Scheduler.
func (f SchedulerFunc) Defer(fn func()) { f(fn) }

// maxDrainTurns bounds Drain when callbacks keep deferring new work.
const maxDrainTurns = 1000

// TurnQueue is a deterministic Scheduler driven explicitly by its owner.
// Each call to RunTurn is one turn. It is the default scheduler of an Object
// and the natural choice for tests.
type TurnQueue struct {
	mu    sync.Mutex
	queue []func()
}

// NewTurnQueue creates an empty queue.
func NewTurnQueue() *TurnQueue {
	return &TurnQueue{}
}

// Defer implements Scheduler.
func (q *TurnQueue) Defer(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

// RunTurn runs the callbacks queued before the call. Callbacks deferred while
// the turn runs wait for the next turn. It returns the number of callbacks run.
func (q *TurnQueue) RunTurn() int {
	q.mu.Lock()
	turn := q.queue
	q.queue = nil
	q.mu.Unlock()

	for _, fn := range turn {
		fn()
	}
	return len(turn)
}

// Drain runs turns until the queue is empty and returns the number of
// callbacks run.
func (q *TurnQueue) Drain() int {
	total := 0
	for i := 0; i < maxDrainTurns; i++ {
		n := q.RunTurn()
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

// Pending returns the number of queued callbacks.
func (q *TurnQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
