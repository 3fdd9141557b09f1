// loop_test.go: Tests for the event loop and its task ring
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLoop(t *testing.T, cfg LoopConfig) *Loop {
	t.Helper()
	if cfg.Idle == nil {
		cfg.Idle = NewSleepStrategy(time.Millisecond)
	}
	loop := NewLoop(cfg)
	if err := loop.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if loop.IsRunning() {
			_ = loop.Stop()
		}
	})
	return loop
}

func TestLoopStartStop(t *testing.T) {
	loop := NewLoop(LoopConfig{Idle: NewSleepStrategy(time.Millisecond)})

	if err := loop.Stop(); GetValidationErrorCode(err) != ErrCodeLoopStopped {
		t.Errorf("stopping an idle loop should fail with %s, got %v", ErrCodeLoopStopped, err)
	}
	if err := loop.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := loop.Start(); GetValidationErrorCode(err) != ErrCodeLoopBusy {
		t.Errorf("second Start should fail with %s, got %v", ErrCodeLoopBusy, err)
	}
	if !loop.IsRunning() {
		t.Error("loop should be running")
	}
	if err := loop.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if loop.IsRunning() {
		t.Error("loop should not be running after Close")
	}
	if err := loop.Start(); GetValidationErrorCode(err) != ErrCodeLoopStopped {
		t.Errorf("a stopped loop cannot restart, got %v", err)
	}
	if err := loop.Dispatch(func() {}); GetValidationErrorCode(err) != ErrCodeLoopStopped {
		t.Errorf("Dispatch after Stop should fail with %s, got %v", ErrCodeLoopStopped, err)
	}
}

func TestLoopDispatchNil(t *testing.T) {
	loop := NewLoop(LoopConfig{})
	if err := loop.Dispatch(nil); GetValidationErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("expected %s, got %v", ErrCodeInvalidConfig, err)
	}
}

func TestLoopRunsTasksQueuedBeforeStart(t *testing.T) {
	loop := NewLoop(LoopConfig{Idle: NewSleepStrategy(time.Millisecond)})
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		if err := loop.Dispatch(func() { ran.Add(1) }); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}

	if err := loop.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if ran.Load() != 3 {
		t.Errorf("expected 3 tasks to run, got %d", ran.Load())
	}
}

func TestLoopRingFull(t *testing.T) {
	loop := NewLoop(LoopConfig{Capacity: 2, Idle: NewSleepStrategy(time.Millisecond)})
	var ran atomic.Int32

	for i := 0; i < 2; i++ {
		if err := loop.Dispatch(func() { ran.Add(1) }); err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
	}
	err := loop.Dispatch(func() { ran.Add(1) })
	if GetValidationErrorCode(err) != ErrCodeLoopFull {
		t.Fatalf("expected %s, got %v", ErrCodeLoopFull, err)
	}
	if dropped := loop.Stats()["items_dropped"]; dropped != 1 {
		t.Errorf("expected 1 dropped task, got %d", dropped)
	}

	_ = loop.Start()
	_ = loop.Stop()
	if ran.Load() != 2 {
		t.Errorf("expected the 2 accepted tasks to run, got %d", ran.Load())
	}
}

func TestLoopConfigRoundsCapacity(t *testing.T) {
	cfg := (&LoopConfig{Capacity: 5}).WithDefaults()
	if cfg.Capacity != 8 {
		t.Errorf("capacity should round up to a power of two, got %d", cfg.Capacity)
	}
	if cfg.BatchSize != 16 || cfg.Idle == nil || cfg.ErrorHandler == nil {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoopDoWaits(t *testing.T) {
	loop := newTestLoop(t, LoopConfig{})
	value := 0
	if err := loop.Do(context.Background(), func() { value = 42 }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if value != 42 {
		t.Errorf("Do returned before the task ran")
	}
}

func TestLoopDoContextDone(t *testing.T) {
	loop := newTestLoop(t, LoopConfig{})
	release := make(chan struct{})
	defer close(release)

	_ = loop.Dispatch(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func() {})
	if GetValidationErrorCode(err) != ErrCodeLoopBusy {
		t.Errorf("expected %s when the context expires, got %v", ErrCodeLoopBusy, err)
	}
}

func TestLoopDeferRunsAfterTask(t *testing.T) {
	loop := newTestLoop(t, LoopConfig{})
	var order []string

	err := loop.Do(context.Background(), func() {
		loop.Defer(func() { order = append(order, "deferred") })
		loop.Defer(nil)
		order = append(order, "task")
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	// The next task runs after every callback the previous one deferred.
	_ = loop.Do(context.Background(), func() { order = append(order, "next") })

	want := []string{"task", "deferred", "next"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	handled := make(chan string, 1)
	loop := newTestLoop(t, LoopConfig{
		ErrorHandler: func(err error, source string) {
			if GetValidationErrorCode(err) == ErrCodeTaskPanic {
				handled <- source
			}
		},
	})

	_ = loop.Dispatch(func() { panic("boom") })

	select {
	case source := <-handled:
		if source != "task" {
			t.Errorf("unexpected panic source %q", source)
		}
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}

	ok := false
	if err := loop.Do(context.Background(), func() { ok = true }); err != nil || !ok {
		t.Fatalf("loop should keep running after a panic: %v", err)
	}
	if panics := loop.Stats()["task_panics"]; panics != 1 {
		t.Errorf("expected 1 recorded panic, got %d", panics)
	}
}

func TestLoopDrivesObjectBatches(t *testing.T) {
	loop := newTestLoop(t, LoopConfig{})
	ctx := context.Background()

	var obj *Object
	var batches []Batch
	err := loop.Do(ctx, func() {
		obj, _ = New(Config{Name: "looped", Scheduler: loop})
		_ = obj.RegisterKey("level", KeyConfig{Default: SharedDefault(1)}, nil)
		obj.OnBatch(func(b Batch) { batches = append(batches, b) })
	})
	if err != nil || obj == nil {
		t.Fatalf("object setup failed: %v", err)
	}

	_ = loop.Do(ctx, func() {
		obj.Set("level", 2)
		obj.Set("level", 3)
	})

	var count int
	var last Change
	_ = loop.Do(ctx, func() {
		count = len(batches)
		if count > 0 {
			last = batches[0].Changes["level"]
		}
		_ = obj.Dispose()
	})

	if count != 1 {
		t.Fatalf("expected one batch, got %d", count)
	}
	if last.PrevVal != 1 || last.NewVal != 3 {
		t.Errorf("unexpected merged change: %+v", last)
	}
}

func TestLoopStats(t *testing.T) {
	loop := newTestLoop(t, LoopConfig{Capacity: 64, BatchSize: 4})
	for i := 0; i < 10; i++ {
		_ = loop.Do(context.Background(), func() {})
	}

	stats := loop.Stats()
	if stats["buffer_size"] != 64 || stats["batch_size"] != 4 {
		t.Errorf("unexpected sizing stats: %v", stats)
	}
	if stats["items_processed"] != 10 {
		t.Errorf("expected 10 processed tasks, got %d", stats["items_processed"])
	}
	for _, key := range []string{"deferred_pending", "task_panics", "items_buffered"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("missing stat %q", key)
		}
	}
}
