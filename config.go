// config.go: Configuration for statekeys objects and event loops
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"log"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrorHandler receives operational errors that have no caller to return to.
// source names the component or object that produced the error.
type ErrorHandler func(err error, source string)

// defaultErrorHandler logs to the standard logger.
func defaultErrorHandler(err error, source string) {
	log.Printf("[statekeys] %s: %v", source, err)
}

// Config configures an Object.
type Config struct {
	// Name identifies the object in events, audit records and traces.
	// Default: "object"
	Name string

	// Lineage, when set, is registered during New together with InitialValues.
	Lineage       Lineage
	InitialValues map[string]any

	// RejectedKeys extends the built-in rejection set {"config"}.
	RejectedKeys []string

	// Scheduler runs batch flushes. Default: a new TurnQueue.
	Scheduler Scheduler

	// Emitter publishes key events. Default: a new Events.
	Emitter Emitter

	// ErrorHandler receives errors from background components.
	// Default: log.Printf
	ErrorHandler ErrorHandler

	// Audit configures a logger owned by the object. Disabled when zero.
	Audit AuditConfig

	// AuditLogger shares an existing logger. It takes precedence over Audit
	// and is not closed by Dispose.
	AuditLogger *AuditLogger

	// Tracer wraps batch flushes in spans. Default: no-op tracer.
	Tracer trace.Tracer
}

// WithDefaults applies sensible defaults to the configuration
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.Name == "" {
		config.Name = "object"
	}
	if config.Scheduler == nil {
		config.Scheduler = NewTurnQueue()
	}
	if config.Emitter == nil {
		config.Emitter = NewEvents()
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("github.com/agilira/statekeys")
	}

	if config.Audit.Enabled {
		if config.Audit.BufferSize <= 0 {
			config.Audit.BufferSize = 1000
		}
		if config.Audit.FlushInterval <= 0 {
			config.Audit.FlushInterval = 5 * time.Second
		}
	}

	return &config
}

// IdleStrategy defines how the loop behaves when no task is queued.
type IdleStrategy interface {
	// Wait is called after a loop iteration found no work
	Wait()

	// Reset is called when work is found to reset any backoff
	Reset()
}

// SleepStrategy sleeps a fixed duration on every idle iteration.
type SleepStrategy struct {
	Duration time.Duration
}

// NewSleepStrategy creates a sleep-based idle strategy.
// A non-positive duration defaults to 1ms.
func NewSleepStrategy(d time.Duration) *SleepStrategy {
	if d <= 0 {
		d = time.Millisecond
	}
	return &SleepStrategy{Duration: d}
}

// Wait implements IdleStrategy
func (s *SleepStrategy) Wait() {
	time.Sleep(s.Duration)
}

// Reset implements IdleStrategy
func (s *SleepStrategy) Reset() {}

// SpinStrategy spins, then yields, then sleeps briefly. It keeps per-loop
// state and must not be shared between loops.
type SpinStrategy struct {
	spins int
}

// NewSpinStrategy creates a progressive spin/yield/sleep idle strategy.
func NewSpinStrategy() *SpinStrategy {
	return &SpinStrategy{}
}

// Wait implements IdleStrategy
func (s *SpinStrategy) Wait() {
	s.spins++
	switch {
	case s.spins < 2000:
		return
	case s.spins < 6000:
		if s.spins&3 == 0 {
			runtime.Gosched()
		}
	default:
		time.Sleep(200 * time.Microsecond)
		s.spins = 0
	}
}

// Reset implements IdleStrategy
func (s *SpinStrategy) Reset() {
	s.spins = 0
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	// Capacity is the task ring size, rounded up to a power of 2.
	// Default: 256
	Capacity int64

	// BatchSize bounds how many tasks one drain pass runs. Default: 16
	BatchSize int64

	// Idle controls behavior when no task is queued. Default: SpinStrategy
	Idle IdleStrategy

	// ErrorHandler receives recovered task panics. Default: log.Printf
	ErrorHandler ErrorHandler
}

// WithDefaults applies sensible defaults to the loop configuration
func (c *LoopConfig) WithDefaults() *LoopConfig {
	config := *c

	if config.Capacity <= 0 {
		config.Capacity = 256
	}

	// Ensure capacity is power of 2
	if config.Capacity&(config.Capacity-1) != 0 {
		capacity := int64(1)
		for capacity < config.Capacity {
			capacity <<= 1
		}
		config.Capacity = capacity
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.Idle == nil {
		config.Idle = NewSpinStrategy()
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}

	return &config
}
