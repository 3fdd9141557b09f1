// flags.go: Command-line flags as a source of state key values
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"reflect"
	"sort"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

type flagSpec struct {
	key  string
	kind string
	def  interface{}
}

// FlagSource maps flash-flags flags onto state keys.
type FlagSource struct {
	flags *flashflags.FlagSet
	specs map[string]flagSpec // by flag name
}

// NewFlagSource creates a flag source backed by a new flag set.
func NewFlagSource(name string) *FlagSource {
	return &FlagSource{
		flags: flashflags.New(name),
		specs: make(map[string]flagSpec),
	}
}

// FlagSet exposes the underlying flag set, for help output and descriptions.
func (s *FlagSource) FlagSet() *flashflags.FlagSet {
	return s.flags
}

// WithEnvPrefix lets flags be read from environment variables with prefix.
func (s *FlagSource) WithEnvPrefix(prefix string) *FlagSource {
	s.flags.SetEnvPrefix(strings.ToUpper(prefix))
	return s
}

// String declares a string flag feeding key.
func (s *FlagSource) String(flag, key, defaultValue, usage string) *FlagSource {
	s.flags.String(flag, defaultValue, usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeString, def: defaultValue}
	return s
}

// Int declares an int flag feeding key.
func (s *FlagSource) Int(flag, key string, defaultValue int, usage string) *FlagSource {
	s.flags.Int(flag, defaultValue, usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeInt, def: defaultValue}
	return s
}

// Bool declares a bool flag feeding key.
func (s *FlagSource) Bool(flag, key string, defaultValue bool, usage string) *FlagSource {
	s.flags.Bool(flag, defaultValue, usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeBool, def: defaultValue}
	return s
}

// Duration declares a duration flag feeding key.
func (s *FlagSource) Duration(flag, key string, defaultValue time.Duration, usage string) *FlagSource {
	s.flags.Duration(flag, defaultValue, usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeDuration, def: defaultValue}
	return s
}

// Float declares a float flag feeding key. The flag is parsed as a string
// and converted when read.
func (s *FlagSource) Float(flag, key string, defaultValue float64, usage string) *FlagSource {
	s.flags.String(flag, toString(defaultValue), usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeFloat, def: defaultValue}
	return s
}

// StringSlice declares a list flag feeding key.
func (s *FlagSource) StringSlice(flag, key string, defaultValue []string, usage string) *FlagSource {
	s.flags.StringSlice(flag, defaultValue, usage)
	s.specs[flag] = flagSpec{key: key, kind: TypeList, def: defaultValue}
	return s
}

// DeclareSchema declares one flag per schema key, named after the key.
// Map-typed keys have no flag form and are skipped.
func (s *FlagSource) DeclareSchema(schema *Schema) *FlagSource {
	names := make([]string, 0, len(schema.Keys))
	for name := range schema.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schema.Keys[name]
		usage := spec.Description
		switch spec.Type {
		case TypeInt:
			def, _ := toInt(orZero(spec.Default, 0))
			s.Int(name, name, def, usage)
		case TypeBool:
			def, _ := toBool(orZero(spec.Default, false))
			s.Bool(name, name, def, usage)
		case TypeDuration:
			def, _ := toDuration(orZero(spec.Default, time.Duration(0)))
			s.Duration(name, name, def, usage)
		case TypeFloat:
			def, _ := toFloat64(orZero(spec.Default, 0.0))
			s.Float(name, name, def, usage)
		case TypeList:
			var def []string
			if items, ok := spec.Default.([]interface{}); ok {
				for _, item := range items {
					def = append(def, toString(item))
				}
			}
			s.StringSlice(name, name, def, usage)
		case TypeMap:
			continue
		default:
			s.String(name, name, toString(spec.Default), usage)
		}
	}
	return s
}

// Parse parses command-line arguments.
func (s *FlagSource) Parse(args []string) error {
	if err := s.flags.Parse(args); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse flags")
	}
	return nil
}

// Values returns the flag values keyed by state key. Flags still at their
// default are left out unless includeDefaults is set.
func (s *FlagSource) Values(includeDefaults bool) map[string]interface{} {
	values := make(map[string]interface{})
	s.flags.VisitAll(func(flag *flashflags.Flag) {
		spec, ok := s.specs[flag.Name()]
		if !ok {
			return
		}
		value, ok := s.read(flag.Name(), spec)
		if !ok {
			return
		}
		if !includeDefaults && sameFlagValue(value, spec.def) {
			return
		}
		values[spec.key] = value
	})
	return values
}

func (s *FlagSource) read(flag string, spec flagSpec) (interface{}, bool) {
	switch spec.kind {
	case TypeInt:
		return s.flags.GetInt(flag), true
	case TypeBool:
		return s.flags.GetBool(flag), true
	case TypeDuration:
		return s.flags.GetDuration(flag), true
	case TypeFloat:
		f, err := toFloat64(s.flags.GetString(flag))
		return f, err == nil
	case TypeList:
		return s.flags.GetStringSlice(flag), true
	default:
		return s.flags.GetString(flag), true
	}
}

// ApplyTo writes the non-default flag values to o through SetAll and
// returns what was written.
func (s *FlagSource) ApplyTo(o *Object, onFlushed func(Batch)) map[string]interface{} {
	values := s.Values(false)
	if len(values) > 0 {
		o.SetAll(values, onFlushed)
	}
	return values
}

func sameFlagValue(a, b interface{}) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok && bok && len(as) == 0 && len(bs) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func orZero(v, zero interface{}) interface{} {
	if v == nil {
		return zero
	}
	return v
}
