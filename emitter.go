// emitter.go: Named-event publish/subscribe
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"sync"
	"sync/atomic"
)

// Listener receives the payload of an emitted event.
type Listener func(payload any)

// Emitter publishes named events to listeners.
type Emitter interface {
	Emit(event string, payload any)
	On(event string, fn Listener) (unsubscribe func())
	Once(event string, fn Listener) (unsubscribe func())
}

type listenerEntry struct {
	id    uint64
	fn    Listener
	once  bool
	fired atomic.Bool
}

// Events is the default Emitter. Listeners run synchronously on the emitting
// goroutine in registration order, outside the internal lock, so they may
// subscribe, unsubscribe or emit themselves.
type Events struct {
	mu        sync.RWMutex
	listeners map[string][]*listenerEntry
	nextID    uint64
}

// NewEvents creates an empty emitter.
func NewEvents() *Events {
	return &Events{listeners: make(map[string][]*listenerEntry)}
}

// On implements Emitter.
func (e *Events) On(event string, fn Listener) func() {
	return e.add(event, fn, false)
}

// Once implements Emitter. fn runs at most once.
func (e *Events) Once(event string, fn Listener) func() {
	return e.add(event, fn, true)
}

func (e *Events) add(event string, fn Listener, once bool) func() {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	entry := &listenerEntry{id: e.nextID, fn: fn, once: once}
	e.listeners[event] = append(e.listeners[event], entry)
	e.mu.Unlock()

	return func() { e.remove(event, entry.id) }
}

func (e *Events) remove(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			updated := make([]*listenerEntry, 0, len(entries)-1)
			updated = append(updated, entries[:i]...)
			updated = append(updated, entries[i+1:]...)
			if len(updated) == 0 {
				delete(e.listeners, event)
			} else {
				e.listeners[event] = updated
			}
			return
		}
	}
}

// Emit implements Emitter. The listener set is captured when Emit starts.
func (e *Events) Emit(event string, payload any) {
	e.mu.RLock()
	entries := e.listeners[event]
	e.mu.RUnlock()

	for _, entry := range entries {
		if entry.once {
			if !entry.fired.CompareAndSwap(false, true) {
				continue
			}
			e.remove(event, entry.id)
		}
		entry.fn(payload)
	}
}

// ListenerCount returns the number of listeners for event.
func (e *Events) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}
