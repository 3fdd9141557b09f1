// Package statekeys provides reactive state keys for Go objects: named values
// with lazy initialization, validation, normalization, write-once semantics and
// change events that are coalesced into one batch per scheduling turn.
//
// # Philosophy
//
// A state key behaves like a field, but every accepted write is observable.
// Invalid writes are dropped silently, so a validator is a filter and not an
// error path. Forbidden key names, on the other hand, fail registration loudly.
//
// # Declaring keys
//
//	obj, _ := statekeys.New(statekeys.Config{Name: "player"})
//
//	obj.RegisterKeys(statekeys.Keys{
//		"volume": {
//			Validator: statekeys.IsType[int](),
//			Setter: func(v, _ any) any {
//				return min(max(v.(int), 0), 100)
//			},
//			Default: statekeys.SharedDefault(50),
//		},
//		"tracks": {
//			Default: statekeys.FactoryDefault(func() any { return []string{} }),
//		},
//		"id": {WriteOnce: true},
//	}, map[string]any{"id": "p-1"})
//
// Keys are materialized on first read or write. A caller-supplied initial value
// wins over the declared default; a shared default is reused by every object,
// a factory default is built per object.
//
// # Change events
//
// Every change of an initialized key emits "<name>Changed" and
// EventKeyChanged synchronously. The first change in a turn schedules one
// flush on the object's Scheduler, which emits EventBatch with all keys that
// changed in that turn:
//
//	obj.OnBatch(func(b statekeys.Batch) {
//		for _, key := range b.Keys {
//			redraw(key)
//		}
//	})
//
// # Concurrency
//
// An Object is confined to the goroutine that owns it. The default scheduler
// is a TurnQueue driven explicitly with RunTurn. For long-lived programs a
// Loop owns objects on a dedicated goroutine: other goroutines post work with
// Dispatch or Do, and deferred flushes run after each task.
//
// # Declarative schemas and value sources
//
// LoadSchema compiles YAML or JSON key specs into a Declaration. Values can be
// fed from a Binder (keys to Go variables), a FlagSource (command-line flags)
// or a ValuesWatcher (a polled values file applied on a Loop).
//
// # Audit
//
// Registrations, rejected names, SetAll deltas and published batches can be
// recorded by an AuditLogger backed by SQLite or JSON lines.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package statekeys
