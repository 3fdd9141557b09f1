// binder.go: Binding Go variables to state keys
//
// Bind* calls only record intents; Apply copies the current key values into
// the bound variables in a single pass, and Attach repeats that after every
// published batch that touches a bound key.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/agilira/go-errors"
)

// bindKind represents the type of binding for fast type switching
type bindKind uint8

const (
	bindString bindKind = iota
	bindInt
	bindInt64
	bindBool
	bindFloat64
	bindDuration
)

// binding is a single variable bound to a key. The typed Bind* methods are
// the only constructors, so target always matches kind.
type binding struct {
	target   unsafe.Pointer
	key      string
	defValue interface{}
	hasDef   bool
	kind     bindKind
}

// Binder copies state key values into Go variables.
type Binder struct {
	obj      *Object
	bindings []binding
}

// NewBinder creates a binder reading from o.
func NewBinder(o *Object) *Binder {
	return &Binder{obj: o, bindings: make([]binding, 0, 16)}
}

func (b *Binder) add(target unsafe.Pointer, key string, kind bindKind, def interface{}, hasDef bool) *Binder {
	b.bindings = append(b.bindings, binding{
		target:   target,
		key:      key,
		defValue: def,
		hasDef:   hasDef,
		kind:     kind,
	})
	return b
}

// BindString binds a string variable to key
func (b *Binder) BindString(target *string, key string, defaultValue ...string) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindString, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindString, nil, false) // #nosec G103
}

// BindInt binds an int variable to key
func (b *Binder) BindInt(target *int, key string, defaultValue ...int) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindInt, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindInt, nil, false) // #nosec G103
}

// BindInt64 binds an int64 variable to key
func (b *Binder) BindInt64(target *int64, key string, defaultValue ...int64) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindInt64, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindInt64, nil, false) // #nosec G103
}

// BindBool binds a bool variable to key
func (b *Binder) BindBool(target *bool, key string, defaultValue ...bool) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindBool, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindBool, nil, false) // #nosec G103
}

// BindFloat64 binds a float64 variable to key
func (b *Binder) BindFloat64(target *float64, key string, defaultValue ...float64) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindFloat64, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindFloat64, nil, false) // #nosec G103
}

// BindDuration binds a time.Duration variable to key
func (b *Binder) BindDuration(target *time.Duration, key string, defaultValue ...time.Duration) *Binder {
	if len(defaultValue) > 0 {
		return b.add(unsafe.Pointer(target), key, bindDuration, defaultValue[0], true) // #nosec G103
	}
	return b.add(unsafe.Pointer(target), key, bindDuration, nil, false) // #nosec G103
}

// Apply copies every bound key into its variable. Conversion errors stop the
// pass and name the failing key.
func (b *Binder) Apply() error {
	for _, bd := range b.bindings {
		if err := b.applyBinding(bd); err != nil {
			return errors.Wrap(err, ErrCodeBindError, "failed to bind key '"+bd.key+"'").
				WithContext("object", b.obj.Name())
		}
	}
	return nil
}

// Attach re-applies the bindings after every batch that changes a bound key.
// Errors go to the object's ErrorHandler.
func (b *Binder) Attach() (detach func()) {
	return b.obj.OnBatch(func(batch Batch) {
		for _, bd := range b.bindings {
			if batch.Has(bd.key) || batch.Has(rootKey(bd.key)) {
				if err := b.Apply(); err != nil {
					b.obj.config.ErrorHandler(err, "binder")
				}
				return
			}
		}
	})
}

func (b *Binder) applyBinding(bd binding) error {
	value, exists := b.lookup(bd.key)
	if !exists || value == nil {
		if !bd.hasDef {
			return nil
		}
		value = bd.defValue
	}

	switch bd.kind {
	case bindString:
		*(*string)(bd.target) = toString(value)
	case bindInt:
		val, err := toInt(value)
		if err != nil {
			return err
		}
		*(*int)(bd.target) = val
	case bindInt64:
		val, err := toInt64(value)
		if err != nil {
			return err
		}
		*(*int64)(bd.target) = val
	case bindBool:
		val, err := toBool(value)
		if err != nil {
			return err
		}
		*(*bool)(bd.target) = val
	case bindFloat64:
		val, err := toFloat64(value)
		if err != nil {
			return err
		}
		*(*float64)(bd.target) = val
	case bindDuration:
		val, err := toDuration(value)
		if err != nil {
			return err
		}
		*(*time.Duration)(bd.target) = val
	default:
		return errors.New(ErrCodeBindError, fmt.Sprintf("unsupported binding kind: %d", bd.kind))
	}
	return nil
}

// lookup resolves key on the object. A dotted key such as "database.host"
// reads the "database" key and walks nested maps when no key by the full
// name exists.
func (b *Binder) lookup(key string) (interface{}, bool) {
	if b.obj.HasKey(key) {
		return b.obj.Get(key), true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	parts := strings.Split(key, ".")
	if !b.obj.HasKey(parts[0]) {
		return nil, false
	}
	current, ok := b.obj.Get(parts[0]).(map[string]interface{})
	if !ok {
		return nil, false
	}
	for i, part := range parts[1:] {
		val, exists := current[part]
		if !exists {
			return nil, false
		}
		if i == len(parts)-2 {
			return val, true
		}
		if current, ok = val.(map[string]interface{}); !ok {
			return nil, false
		}
	}
	return nil, false
}

// rootKey returns the state key a possibly dotted binding key reads from.
func rootKey(key string) string {
	if idx := strings.IndexByte(key, '.'); idx > 0 {
		return key[:idx]
	}
	return key
}
