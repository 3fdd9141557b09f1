// scheduler_test.go: Tests for the turn queue
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"reflect"
	"testing"
)

func TestTurnQueueRunTurn(t *testing.T) {
	q := NewTurnQueue()
	var order []string

	q.Defer(func() {
		order = append(order, "first")
		q.Defer(func() { order = append(order, "nested") })
	})
	q.Defer(func() { order = append(order, "second") })
	q.Defer(nil)

	if q.Pending() != 2 {
		t.Fatalf("nil callbacks should be ignored, pending = %d", q.Pending())
	}

	if n := q.RunTurn(); n != 2 {
		t.Errorf("RunTurn ran %d callbacks, want 2", n)
	}
	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("unexpected order after one turn: %v", order)
	}
	if q.Pending() != 1 {
		t.Errorf("nested callback should wait for the next turn, pending = %d", q.Pending())
	}

	q.RunTurn()
	if order[2] != "nested" {
		t.Errorf("expected nested callback in the second turn, got %v", order)
	}
}

func TestTurnQueueDrain(t *testing.T) {
	q := NewTurnQueue()
	depth := 0
	var step func()
	step = func() {
		depth++
		if depth < 5 {
			q.Defer(step)
		}
	}
	q.Defer(step)

	if n := q.Drain(); n != 5 {
		t.Errorf("Drain ran %d callbacks, want 5", n)
	}
	if q.Pending() != 0 {
		t.Error("queue should be empty after Drain")
	}
	if q.Drain() != 0 {
		t.Error("draining an empty queue should run nothing")
	}
}

func TestTurnQueueDrainIsBounded(t *testing.T) {
	q := NewTurnQueue()
	var forever func()
	forever = func() { q.Defer(forever) }
	q.Defer(forever)

	if n := q.Drain(); n != maxDrainTurns {
		t.Errorf("Drain ran %d callbacks, want %d", n, maxDrainTurns)
	}
	if q.Pending() != 1 {
		t.Errorf("the self-rescheduling callback should still be queued")
	}
}

func TestSchedulerFunc(t *testing.T) {
	var deferred []func()
	sched := SchedulerFunc(func(fn func()) { deferred = append(deferred, fn) })

	obj, err := New(Config{Scheduler: sched})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = obj.Dispose() }()
	registerCounter(t, obj, "n")

	var batches int
	obj.OnBatch(func(Batch) { batches++ })
	obj.Set("n", 1)
	obj.Set("n", 2)

	if len(deferred) != 1 {
		t.Fatalf("expected one deferred flush, got %d", len(deferred))
	}
	deferred[0]()
	if batches != 1 {
		t.Errorf("expected one batch, got %d", batches)
	}
}
