// bulk.go: Multi-key reads and writes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import "sort"

// GetAll returns the values of the given names, or of every registered key
// when no names are given. Reading materializes uninitialized keys.
func (o *Object) GetAll(names ...string) map[string]any {
	if len(names) == 0 {
		names = o.Keys()
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = o.Get(name)
	}
	return out
}

// SetAll writes every entry of values in sorted key order.
//
// values is first merged into the last-applied config record and an
// EventConfigChanged is emitted with copies of the record before and after.
// When the writes leave a batch pending, onFlushed runs once right after that
// batch is published. It is never called if no batch is pending. SetAll on a
// disposed object does nothing.
func (o *Object) SetAll(values map[string]any, onFlushed func(Batch)) {
	if !o.alive.Load() {
		return
	}
	old := copyMap(o.applied)
	for k, v := range values {
		o.applied[k] = v
	}
	current := copyMap(o.applied)
	o.emitter.Emit(EventConfigChanged, ConfigChange{Old: old, New: current})
	o.auditLogger.LogConfigChange(o.name, old, current)

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.Set(name, values[name])
	}

	if onFlushed != nil && o.batch != nil {
		o.batch.flushed = append(o.batch.flushed, onFlushed)
	}
}

// AppliedConfig returns a copy of the record accumulated by SetAll.
func (o *Object) AppliedConfig() map[string]any {
	return copyMap(o.applied)
}
