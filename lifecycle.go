// lifecycle.go: Lazy initialization and the validated write path
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

// Get returns the value of name. The first read of a registered key
// materializes it from its initial value or, failing that, its default.
// Unregistered names read from a plain property bag and return nil when absent.
func (o *Object) Get(name string) any {
	info, ok := o.keys[name]
	if !ok {
		return o.plain[name]
	}
	return o.read(name, info)
}

// Set writes value to name. For registered keys the write is dropped silently
// when the key is write-once and already written, or when the validator
// rejects it. Accepted values pass through the setter before being stored.
// Set on a disposed object does nothing.
func (o *Object) Set(name string, value any) {
	if !o.alive.Load() {
		return
	}
	info, ok := o.keys[name]
	if !ok {
		o.plain[name] = value
		return
	}
	o.write(name, info, value)
}

func (o *Object) read(name string, info *keyInfo) any {
	if info.state != StateUninitialized {
		return info.value
	}

	info.state = StateInitializing
	if info.hasInitial {
		v := info.initial
		info.initial, info.hasInitial = nil, false
		o.write(name, info, v)
	}
	if !info.written {
		info.state = StateInitializingDefault
		o.write(name, info, defaultValue(info.cfg.Default))
	}
	info.state = StateInitialized
	return info.value
}

func (o *Object) write(name string, info *keyInfo, value any) {
	if info.cfg.WriteOnce && info.written {
		return
	}
	if info.state != StateInitializingDefault && info.cfg.Validator != nil && !info.cfg.Validator(value, name) {
		return
	}

	prev := o.read(name, info)
	// The read above may have consumed an initial value.
	if info.cfg.WriteOnce && info.written {
		return
	}

	stored := value
	if info.cfg.Setter != nil {
		stored = info.cfg.Setter(value, prev)
	}
	if info.state != StateInitializingDefault {
		info.written = true
	}
	info.value = stored
	o.notifyChange(name, info, prev)
}
