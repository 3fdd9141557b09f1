// registry.go: Key registration, rejection and accessor installation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"github.com/agilira/go-errors"
)

// Accessor is the property-style view of a single key.
type Accessor struct {
	Get func() any
	Set func(value any)
}

// AccessorTarget receives accessors for registered keys. It lets a host type
// expose state keys as if they were its own fields.
type AccessorTarget interface {
	InstallAccessor(name string, acc Accessor)
	RemoveAccessor(name string)
}

// AccessorTable is a map-backed AccessorTarget.
type AccessorTable map[string]Accessor

// InstallAccessor implements AccessorTarget.
func (t AccessorTable) InstallAccessor(name string, acc Accessor) { t[name] = acc }

// RemoveAccessor implements AccessorTarget.
func (t AccessorTable) RemoveAccessor(name string) { delete(t, name) }

// RegisterOption customizes a registration call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	target AccessorTarget
	skip   bool
}

// WithTarget installs accessors on target instead of the object's own table.
func WithTarget(target AccessorTarget) RegisterOption {
	return func(opts *registerOptions) {
		opts.target = target
	}
}

// WithoutAccessor registers keys without installing any accessor.
func WithoutAccessor() RegisterOption {
	return func(opts *registerOptions) {
		opts.skip = true
	}
}

// RegisterKey registers a single state key. A nil initial value means the
// key starts from its default.
func (o *Object) RegisterKey(name string, cfg KeyConfig, initial any, opts ...RegisterOption) error {
	return o.RegisterKeys(Keys{name: cfg}, map[string]any{name: initial}, opts...)
}

// RegisterKeys registers every key in cfgs. Initial values take precedence
// over declared defaults and are only consumed on first access.
//
// Either all keys are registered or none: a rejected or empty name fails the
// whole call before anything is modified. Registering an existing name
// replaces its declaration and resets it to uninitialized.
func (o *Object) RegisterKeys(cfgs Keys, initial map[string]any, opts ...RegisterOption) error {
	if !o.alive.Load() {
		return errors.New(ErrCodeObjectDisposed, "cannot register keys on a disposed object").
			WithContext("object", o.name)
	}

	names := cfgs.Names()
	for _, name := range names {
		if name == "" {
			return errors.New(ErrCodeInvalidConfig, "state key name cannot be empty").
				WithContext("object", o.name)
		}
		if _, rejected := o.rejected[name]; rejected {
			o.auditLogger.LogSecurityEvent("key_rejected", "attempt to register a rejected state key", map[string]interface{}{
				"object": o.name,
				"key":    name,
			})
			return errors.New(ErrCodeRejectedKey, "state key name is reserved").
				WithContext("object", o.name).
				WithContext("key", name)
		}
	}

	options := registerOptions{target: o.accessors}
	for _, opt := range opts {
		opt(&options)
	}

	for _, name := range names {
		o.addKey(name, cfgs[name], initial, options)
	}
	return nil
}

// RegisterDeclaration adds the reject list of decl to the rejection set and
// then registers its keys. On failure the rejection set is left as it was.
func (o *Object) RegisterDeclaration(decl Declaration, initial map[string]any, opts ...RegisterOption) error {
	if !o.alive.Load() {
		return errors.New(ErrCodeObjectDisposed, "cannot register keys on a disposed object").
			WithContext("object", o.name)
	}
	added := make([]string, 0, len(decl.Reject))
	for _, name := range decl.Reject {
		if _, ok := o.rejected[name]; !ok {
			o.rejected[name] = struct{}{}
			added = append(added, name)
		}
	}
	if err := o.RegisterKeys(decl.Keys, initial, opts...); err != nil {
		for _, name := range added {
			delete(o.rejected, name)
		}
		return err
	}
	return nil
}

// RegisterLineage resolves the declarations of l, once per dynamic type, and
// registers the merged result.
func (o *Object) RegisterLineage(l Lineage, initial map[string]any, opts ...RegisterOption) error {
	if l == nil {
		return errors.New(ErrCodeInvalidConfig, "lineage cannot be nil").
			WithContext("object", o.name)
	}
	decl, fresh := resolveLineage(l)
	o.auditLogger.Log(AuditInfo, "lineage_resolved", o.name, "", nil, nil, map[string]interface{}{
		"keys":  len(decl.Keys),
		"fresh": fresh,
	})
	return o.RegisterDeclaration(decl, initial, opts...)
}

// RemoveKey unregisters name and removes its accessor. Afterwards the name
// behaves like a plain property. It reports whether name was registered.
func (o *Object) RemoveKey(name string) bool {
	if _, ok := o.keys[name]; !ok {
		return false
	}
	delete(o.keys, name)
	if target, ok := o.targets[name]; ok {
		target.RemoveAccessor(name)
		delete(o.targets, name)
	}
	o.auditLogger.LogKeyEvent("key_removed", o.name, name)
	return true
}

// Accessor returns the accessor installed in the object's own table.
func (o *Object) Accessor(name string) (Accessor, bool) {
	acc, ok := o.accessors[name]
	return acc, ok
}

func (o *Object) addKey(name string, cfg KeyConfig, initial map[string]any, options registerOptions) {
	if old, ok := o.targets[name]; ok {
		old.RemoveAccessor(name)
		delete(o.targets, name)
	}

	info := &keyInfo{cfg: cfg, state: StateUninitialized}
	if v, ok := initial[name]; ok && v != nil {
		info.initial = v
		info.hasInitial = true
	}
	o.keys[name] = info

	if !options.skip && options.target != nil {
		options.target.InstallAccessor(name, Accessor{
			Get: func() any { return o.Get(name) },
			Set: func(value any) { o.Set(name, value) },
		})
		o.targets[name] = options.target
	}
	o.auditLogger.LogKeyEvent("key_registered", o.name, name)
}
