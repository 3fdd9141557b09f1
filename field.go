// field.go: Typed access to state keys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

// Field is a typed handle on a state key.
//
//	var Count = statekeys.NewField[int]("count")
//
//	Count.Register(obj, statekeys.KeyConfig{Default: statekeys.SharedDefault(0)})
//	Count.Set(obj, 3)
//	n := Count.Get(obj)
type Field[T any] struct {
	name string
}

// NewField returns a handle for the key name.
func NewField[T any](name string) Field[T] {
	return Field[T]{name: name}
}

// Name returns the key name.
func (f Field[T]) Name() string { return f.name }

// Register registers the key on o. A type check is prepended to any
// validator in cfg.
func (f Field[T]) Register(o *Object, cfg KeyConfig, opts ...RegisterOption) error {
	inner := cfg.Validator
	cfg.Validator = func(value any, key string) bool {
		if _, ok := value.(T); !ok {
			return false
		}
		return inner == nil || inner(value, key)
	}
	return o.RegisterKey(f.name, cfg, nil, opts...)
}

// Lookup returns the value and whether it holds a T.
func (f Field[T]) Lookup(o *Object) (T, bool) {
	v, ok := o.Get(f.name).(T)
	return v, ok
}

// Get returns the value, or the zero T when unset or of another type.
func (f Field[T]) Get(o *Object) T {
	v, _ := f.Lookup(o)
	return v
}

// Set writes v through the key's validator and setter.
func (f Field[T]) Set(o *Object, v T) {
	o.Set(f.name, v)
}

// OnChange subscribes fn to typed changes of the key. Values that do not
// hold a T are delivered as the zero T.
func (f Field[T]) OnChange(o *Object, fn func(newVal, prevVal T)) (unsubscribe func()) {
	return o.OnChange(f.name, func(c Change) {
		newVal, _ := c.NewVal.(T)
		prevVal, _ := c.PrevVal.(T)
		fn(newVal, prevVal)
	})
}

// IsType returns a validator accepting only values of type T.
func IsType[T any]() func(value any, key string) bool {
	return func(value any, _ string) bool {
		_, ok := value.(T)
		return ok
	}
}
