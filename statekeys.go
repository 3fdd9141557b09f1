// statekeys: Reactive state keys with lazy initialization and per-turn batched change events
//
// Philosophy:
// - Minimal dependencies (AGILira ecosystem first: go-errors, go-timecache)
// - Objects are confined to one goroutine; the scheduler is the only async boundary
// - Silent rejection of invalid writes, loud rejection of forbidden registrations
// - One batch event per turn no matter how many keys changed
//
// Example Usage:
//   obj, err := statekeys.New(statekeys.Config{Name: "widget"})
//   if err != nil {
//       return err
//   }
//   obj.RegisterKeys(statekeys.Keys{
//       "count": {Validator: statekeys.IsType[int](), Default: statekeys.SharedDefault(0)},
//   }, nil)
//
//   obj.OnBatch(func(b statekeys.Batch) {
//       render(b.Keys)
//   })
//   obj.Set("count", 3)
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"sort"
	"sync/atomic"

	"github.com/agilira/go-errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Error codes for statekeys operations
const (
	ErrCodeInvalidConfig        = "STATEKEYS_INVALID_CONFIG"
	ErrCodeRejectedKey          = "STATEKEYS_REJECTED_KEY"
	ErrCodeObjectDisposed       = "STATEKEYS_OBJECT_DISPOSED"
	ErrCodeLoopBusy             = "STATEKEYS_LOOP_BUSY"
	ErrCodeLoopStopped          = "STATEKEYS_LOOP_STOPPED"
	ErrCodeLoopFull             = "STATEKEYS_LOOP_FULL"
	ErrCodeTaskPanic            = "STATEKEYS_TASK_PANIC"
	ErrCodeSchemaError          = "STATEKEYS_SCHEMA_ERROR"
	ErrCodeUnsupportedFormat    = "STATEKEYS_UNSUPPORTED_FORMAT"
	ErrCodeWatchError           = "STATEKEYS_WATCH_ERROR"
	ErrCodeBindError            = "STATEKEYS_BIND_ERROR"
	ErrCodeRemoteError          = "STATEKEYS_REMOTE_ERROR"
	ErrCodeInvalidAuditConfig   = "STATEKEYS_INVALID_AUDIT_CONFIG"
	ErrCodeInvalidBufferSize    = "STATEKEYS_INVALID_BUFFER_SIZE"
	ErrCodeInvalidFlushInterval = "STATEKEYS_INVALID_FLUSH_INTERVAL"
	ErrCodeInvalidOutputFile    = "STATEKEYS_INVALID_OUTPUT_FILE"
	ErrCodeInvalidLoopCapacity  = "STATEKEYS_INVALID_LOOP_CAPACITY"
	ErrCodeInvalidBatchSize     = "STATEKEYS_INVALID_BATCH_SIZE"
)

// defaultRejectedKeys can never be registered as state keys.
var defaultRejectedKeys = []string{"config"}

// Object holds a set of state keys and publishes their changes.
//
// An Object is not safe for concurrent use. All calls must come from the
// goroutine that owns it, typically a Loop task. Listeners and deferred
// flushes run on that same goroutine as long as the Scheduler honors it.
type Object struct {
	id     string
	name   string
	config Config

	keys      map[string]*keyInfo
	plain     map[string]any
	accessors AccessorTable
	targets   map[string]AccessorTarget
	rejected  map[string]struct{}
	applied   map[string]any

	batch *pendingBatch

	emitter     Emitter
	scheduler   Scheduler
	auditLogger *AuditLogger
	ownsAudit   bool
	tracer      trace.Tracer

	alive atomic.Bool
}

// New creates an Object. When config.Lineage is set its declarations are
// registered with config.InitialValues before New returns.
func New(config Config) (*Object, error) {
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Object{
		id:        uuid.NewString(),
		name:      cfg.Name,
		config:    *cfg,
		keys:      make(map[string]*keyInfo),
		plain:     make(map[string]any),
		accessors: make(AccessorTable),
		targets:   make(map[string]AccessorTarget),
		rejected:  make(map[string]struct{}),
		applied:   make(map[string]any),
		emitter:   cfg.Emitter,
		scheduler: cfg.Scheduler,
		tracer:    cfg.Tracer,
	}
	for _, name := range defaultRejectedKeys {
		o.rejected[name] = struct{}{}
	}
	for _, name := range cfg.RejectedKeys {
		o.rejected[name] = struct{}{}
	}

	switch {
	case cfg.AuditLogger != nil:
		o.auditLogger = cfg.AuditLogger
	case cfg.Audit.Enabled:
		logger, err := NewAuditLogger(cfg.Audit)
		if err != nil {
			cfg.ErrorHandler(err, o.name)
			logger, _ = NewAuditLogger(AuditConfig{})
		}
		o.auditLogger = logger
		o.ownsAudit = true
	default:
		o.auditLogger, _ = NewAuditLogger(AuditConfig{})
	}

	o.alive.Store(true)

	if cfg.Lineage != nil {
		if err := o.RegisterLineage(cfg.Lineage, cfg.InitialValues); err != nil {
			_ = o.Dispose()
			return nil, err
		}
	}
	return o, nil
}

// ID returns the unique instance identifier of the object.
func (o *Object) ID() string { return o.id }

// Name returns the configured object name.
func (o *Object) Name() string { return o.name }

// Emitter returns the emitter the object publishes on.
func (o *Object) Emitter() Emitter { return o.emitter }

// IsDisposed reports whether Dispose has been called.
func (o *Object) IsDisposed() bool { return !o.alive.Load() }

// Dispose tears the object down. Pending batches are dropped, installed
// accessors are removed and the audit logger is closed if the object owns it.
// Calling Dispose more than once is a no-op.
func (o *Object) Dispose() error {
	if !o.alive.CompareAndSwap(true, false) {
		return nil
	}
	o.batch = nil
	for name, target := range o.targets {
		target.RemoveAccessor(name)
	}
	o.targets = make(map[string]AccessorTarget)

	o.auditLogger.Log(AuditInfo, "object_disposed", o.name, "", nil, nil, map[string]interface{}{
		"object_id": o.id,
		"keys":      len(o.keys),
	})
	if o.ownsAudit {
		if err := o.auditLogger.Close(); err != nil {
			return errors.Wrap(err, ErrCodeInvalidAuditConfig, "failed to close audit logger").
				WithContext("object", o.name)
		}
	}
	return nil
}

// Close is an alias for Dispose.
func (o *Object) Close() error {
	return o.Dispose()
}

// Keys returns the registered key names in sorted order.
func (o *Object) Keys() []string {
	names := make([]string, 0, len(o.keys))
	for name := range o.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasKey reports whether name is a registered state key.
func (o *Object) HasKey(name string) bool {
	_, ok := o.keys[name]
	return ok
}

// State returns the lifecycle state of a registered key.
func (o *Object) State(name string) (LifecycleState, bool) {
	info, ok := o.keys[name]
	if !ok {
		return StateUninitialized, false
	}
	return info.state, true
}

// CanWrite reports whether a write to name could still be accepted.
// It is false only for write-once keys that have already been written.
// Unregistered names are always writable.
func (o *Object) CanWrite(name string) bool {
	info, ok := o.keys[name]
	if !ok {
		return true
	}
	return !(info.cfg.WriteOnce && info.written)
}

// HasBeenSet reports whether name was explicitly written or still holds a
// pending initial value. Defaults do not count.
func (o *Object) HasBeenSet(name string) bool {
	info, ok := o.keys[name]
	if !ok {
		return false
	}
	return info.written || info.hasInitial
}

// IsRejected reports whether name is in the object's rejection set.
func (o *Object) IsRejected(name string) bool {
	_, ok := o.rejected[name]
	return ok
}
