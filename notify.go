// notify.go: Change detection, per-turn batching and typed subscriptions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"context"
	"time"

	"github.com/agilira/go-timecache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Event names published on the object's Emitter.
const (
	// EventKeyChanged carries a Change for every key change.
	EventKeyChanged = "stateKeyChanged"

	// EventBatch carries the Batch of one turn.
	EventBatch = "stateKeysChanged"

	// EventConfigChanged carries a ConfigChange for every SetAll call.
	EventConfigChanged = "configChanged"
)

// KeyEvent returns the per-key event name for name, e.g. "countChanged".
func KeyEvent(name string) string {
	return name + "Changed"
}

// Change describes a single key transition.
type Change struct {
	Key     string
	NewVal  any
	PrevVal any
}

// Batch aggregates the changes of one turn. For a key changed several times
// PrevVal is the value before the first change and NewVal the latest one.
type Batch struct {
	Changes map[string]Change
	Keys    []string // first-change order
	At      time.Time
}

// Has reports whether key changed in this batch.
func (b Batch) Has(key string) bool {
	_, ok := b.Changes[key]
	return ok
}

// ConfigChange carries the last-applied config snapshots around a SetAll call.
type ConfigChange struct {
	Old map[string]any
	New map[string]any
}

type pendingBatch struct {
	changes map[string]Change
	order   []string
	flushed []func(Batch)
}

func (p *pendingBatch) merge(c Change) {
	if existing, ok := p.changes[c.Key]; ok {
		existing.NewVal = c.NewVal
		p.changes[c.Key] = existing
		return
	}
	p.changes[c.Key] = c
	p.order = append(p.order, c.Key)
}

func (o *Object) notifyChange(name string, info *keyInfo, prev any) {
	if info.state != StateInitialized || !o.alive.Load() {
		return
	}
	if !isObjectValue(prev) && prev == info.value {
		return
	}

	change := Change{Key: name, NewVal: info.value, PrevVal: prev}
	o.emitter.Emit(KeyEvent(name), change)
	o.emitter.Emit(EventKeyChanged, change)

	// A listener may have disposed the object.
	if !o.alive.Load() {
		return
	}
	if o.batch == nil {
		o.batch = &pendingBatch{changes: make(map[string]Change)}
		o.scheduler.Defer(o.flush)
	}
	o.batch.merge(change)
}

// flush publishes the pending batch. The batch is detached before listeners
// run, so writes made from a batch listener start the next batch.
func (o *Object) flush() {
	if !o.alive.Load() {
		return
	}
	pending := o.batch
	if pending == nil {
		return
	}
	o.batch = nil

	batch := Batch{Changes: pending.changes, Keys: pending.order, At: timecache.CachedTime()}

	_, span := o.tracer.Start(context.Background(), "statekeys.flush",
		trace.WithAttributes(
			attribute.String("statekeys.object", o.name),
			attribute.StringSlice("statekeys.keys", batch.Keys),
		))
	defer span.End()

	o.emitter.Emit(EventBatch, batch)
	for _, fn := range pending.flushed {
		fn(batch)
	}
	o.auditLogger.LogBatch(o.name, batch)
}

// HasPendingBatch reports whether a flush is scheduled.
func (o *Object) HasPendingBatch() bool {
	return o.batch != nil
}

// OnChange subscribes fn to changes of a single key.
func (o *Object) OnChange(key string, fn func(Change)) (unsubscribe func()) {
	return o.emitter.On(KeyEvent(key), func(payload any) {
		if c, ok := payload.(Change); ok {
			fn(c)
		}
	})
}

// OnAnyChange subscribes fn to changes of every key.
func (o *Object) OnAnyChange(fn func(Change)) (unsubscribe func()) {
	return o.emitter.On(EventKeyChanged, func(payload any) {
		if c, ok := payload.(Change); ok {
			fn(c)
		}
	})
}

// OnBatch subscribes fn to per-turn batches.
func (o *Object) OnBatch(fn func(Batch)) (unsubscribe func()) {
	return o.emitter.On(EventBatch, func(payload any) {
		if b, ok := payload.(Batch); ok {
			fn(b)
		}
	})
}

// OnConfigChange subscribes fn to SetAll config deltas.
func (o *Object) OnConfigChange(fn func(ConfigChange)) (unsubscribe func()) {
	return o.emitter.On(EventConfigChanged, func(payload any) {
		if c, ok := payload.(ConfigChange); ok {
			fn(c)
		}
	})
}
