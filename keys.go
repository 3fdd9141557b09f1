// keys.go: Key declarations, defaults and lifecycle states
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"reflect"
	"sort"
	"sync"
)

// LifecycleState tracks how far a key has progressed through lazy initialization.
// States only move forward.
type LifecycleState int

const (
	// StateUninitialized is the state of a freshly registered key.
	StateUninitialized LifecycleState = iota

	// StateInitializing is entered while a caller-supplied initial value is consumed.
	StateInitializing

	// StateInitializingDefault is entered while the fallback default is computed.
	// Writes in this state bypass validation.
	StateInitializingDefault

	// StateInitialized means the key holds a materialized value.
	StateInitialized
)

func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitializingDefault:
		return "initializing_default"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Default is the fallback value of a key when no initial value was supplied.
// Use SharedDefault or FactoryDefault to build one.
type Default interface {
	resolve() any
	shared() bool
}

type sharedDefault struct{ v any }

func (d sharedDefault) resolve() any { return d.v }
func (d sharedDefault) shared() bool { return true }

type factoryDefault struct{ fn func() any }

func (d factoryDefault) resolve() any { return d.fn() }
func (d factoryDefault) shared() bool { return false }

// SharedDefault returns a default whose value is reused by every object that
// registers the key. Maps, slices and pointers are aliased across objects.
func SharedDefault(v any) Default {
	return sharedDefault{v: v}
}

// FactoryDefault returns a default computed per object by calling fn.
// A nil fn yields no default.
func FactoryDefault(fn func() any) Default {
	if fn == nil {
		return nil
	}
	return factoryDefault{fn: fn}
}

// defaultValue resolves d, treating a nil Default as "no value".
func defaultValue(d Default) any {
	if d == nil {
		return nil
	}
	return d.resolve()
}

// KeyConfig declares the behavior of a single state key.
// A KeyConfig must not be mutated after registration.
type KeyConfig struct {
	// Validator accepts or rejects a value written to the key.
	// Returning false drops the write silently. Nil accepts everything.
	Validator func(value any, key string) bool

	// Setter normalizes an accepted value. Its result is what gets stored.
	Setter func(newValue, prevValue any) any

	// Default is used when the key is first read without an initial value.
	Default Default

	// WriteOnce ignores every write after the first accepted one. A pending
	// initial value counts as that first write, even when the key is still
	// uninitialized when Set is called.
	WriteOnce bool

	// Description is informational and shows up in the CLI.
	Description string
}

// Keys maps key names to their configuration.
type Keys map[string]KeyConfig

// Names returns the key names in sorted order.
func (k Keys) Names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new Keys holding k overlaid with each of others in order.
// Later entries replace earlier entries of the same name.
func (k Keys) Merge(others ...Keys) Keys {
	size := len(k)
	for _, o := range others {
		size += len(o)
	}
	merged := make(Keys, size)
	for name, cfg := range k {
		merged[name] = cfg
	}
	for _, o := range others {
		for name, cfg := range o {
			merged[name] = cfg
		}
	}
	return merged
}

// Declaration is one layer of key declarations, typically contributed by a
// single type in a composition chain.
type Declaration struct {
	Keys   Keys
	Reject []string
}

// Compose merges declarations in order. Keys of later declarations override
// earlier ones; reject lists are unioned.
func Compose(decls ...Declaration) Declaration {
	out := Declaration{Keys: Keys{}}
	seen := make(map[string]struct{})
	for _, d := range decls {
		out.Keys = out.Keys.Merge(d.Keys)
		for _, name := range d.Reject {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out.Reject = append(out.Reject, name)
		}
	}
	sort.Strings(out.Reject)
	return out
}

// Lineage is implemented by types that contribute key declarations from a
// chain of embedded types. KeyDeclarations returns the chain root first.
//
// The merged result is cached per dynamic type, so every value of a given
// type must return the same declarations.
type Lineage interface {
	KeyDeclarations() []Declaration
}

// lineageCache memoizes Compose(l.KeyDeclarations()...) by dynamic type.
var lineageCache sync.Map // reflect.Type -> Declaration

// resolveLineage returns the merged declaration for l. fresh reports whether
// the merge was computed by this call rather than served from the cache.
func resolveLineage(l Lineage) (decl Declaration, fresh bool) {
	t := reflect.TypeOf(l)
	if cached, ok := lineageCache.Load(t); ok {
		return cached.(Declaration), false
	}
	merged := Compose(l.KeyDeclarations()...)
	actual, loaded := lineageCache.LoadOrStore(t, merged)
	return actual.(Declaration), !loaded
}

// keyInfo is the per-object record of one registered key.
type keyInfo struct {
	cfg        KeyConfig
	initial    any
	hasInitial bool
	state      LifecycleState
	value      any
	written    bool
}

// isObjectValue reports whether v has reference or composite semantics, in
// which case equality with a previous value cannot prove that nothing changed.
func isObjectValue(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Struct, reflect.Array,
		reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
