// loop.go: Event loop goroutine owning statekeys objects
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// Loop is a single goroutine that runs tasks posted from anywhere and, after
// each task, the callbacks deferred during it. It implements Scheduler, so
// objects created inside Loop tasks with the Loop as their scheduler get one
// batch flush per task.
//
// Example:
//
//	loop := statekeys.NewLoop(statekeys.LoopConfig{})
//	loop.Start()
//	defer loop.Stop()
//
//	var obj *statekeys.Object
//	loop.Do(ctx, func() {
//	    obj, _ = statekeys.New(statekeys.Config{Scheduler: loop})
//	})
type Loop struct {
	config LoopConfig
	ring   *taskRing

	deferredMu sync.Mutex
	deferred   []func()

	running   atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	panics atomic.Int64
}

// NewLoop creates a loop. It does not start the goroutine.
func NewLoop(config LoopConfig) *Loop {
	cfg := config.WithDefaults()
	return &Loop{
		config:    *cfg,
		ring:      newTaskRing(cfg.Capacity, cfg.BatchSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	if l.stopped.Load() {
		return errors.New(ErrCodeLoopStopped, "loop has been stopped and cannot be restarted")
	}
	if !l.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeLoopBusy, "loop is already running")
	}
	go l.run()
	return nil
}

// Stop stops the loop after running every task already queued.
func (l *Loop) Stop() error {
	if !l.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeLoopStopped, "loop is not running")
	}
	l.stopped.Store(true)
	close(l.stopCh)
	<-l.stoppedCh
	l.ring.stop()
	return nil
}

// Close is an alias for Stop.
func (l *Loop) Close() error {
	return l.Stop()
}

// IsRunning reports whether the loop goroutine is active.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Dispatch posts fn to the loop. Tasks posted before Start run once the loop
// starts.
func (l *Loop) Dispatch(fn func()) error {
	if fn == nil {
		return errors.New(ErrCodeInvalidConfig, "task cannot be nil")
	}
	if l.stopped.Load() {
		return errors.New(ErrCodeLoopStopped, "loop is stopped")
	}
	if !l.ring.push(fn) {
		return errors.New(ErrCodeLoopFull, "loop task ring is full").
			WithContext("capacity", l.ring.capacity)
	}
	return nil
}

// Do dispatches fn and waits for it to finish, or for ctx to be done.
// It must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Dispatch(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), ErrCodeLoopBusy, "task did not complete before context was done")
	}
}

// Defer implements Scheduler. fn runs after the current task, on the loop
// goroutine.
func (l *Loop) Defer(fn func()) {
	if fn == nil {
		return
	}
	l.deferredMu.Lock()
	l.deferred = append(l.deferred, fn)
	l.deferredMu.Unlock()
}

// Stats returns ring and loop counters.
func (l *Loop) Stats() map[string]int64 {
	stats := l.ring.stats()
	l.deferredMu.Lock()
	stats["deferred_pending"] = int64(len(l.deferred))
	l.deferredMu.Unlock()
	stats["task_panics"] = l.panics.Load()
	return stats
}

func (l *Loop) run() {
	defer close(l.stoppedCh)

	idle := l.config.Idle
	for {
		select {
		case <-l.stopCh:
			// Final drain
			for attempts := 0; attempts < maxDrainTurns; attempts++ {
				if l.ring.drain(l.runTask)+l.runDeferred() == 0 {
					break
				}
			}
			return
		default:
		}

		processed := l.ring.drain(l.runTask)
		processed += l.runDeferred()
		if processed > 0 {
			idle.Reset()
			continue
		}
		idle.Wait()
	}
}

// runTask runs one task followed by every callback it deferred.
func (l *Loop) runTask(fn func()) {
	l.safeRun(fn, "task")
	l.runDeferred()
}

// runDeferred runs deferred callbacks until none are left, bounded by
// maxDrainTurns rounds.
func (l *Loop) runDeferred() int {
	total := 0
	for i := 0; i < maxDrainTurns; i++ {
		l.deferredMu.Lock()
		batch := l.deferred
		l.deferred = nil
		l.deferredMu.Unlock()

		if len(batch) == 0 {
			break
		}
		for _, fn := range batch {
			l.safeRun(fn, "deferred")
		}
		total += len(batch)
	}
	return total
}

func (l *Loop) safeRun(fn func(), source string) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.config.ErrorHandler(errors.New(ErrCodeTaskPanic, fmt.Sprintf("loop %s panicked: %v", source, r)), source)
		}
	}()
	fn()
}
