// schema.go: Declarative key definitions loaded from YAML or JSON
//
// A schema file looks like:
//
//	keys:
//	  title:
//	    type: string
//	    default: untitled
//	    normalize: [trim]
//	  retries:
//	    type: int
//	    default: 3
//	    min: 0
//	    max: 10
//	  id:
//	    type: string
//	    write_once: true
//	reject: [internal]
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Key types understood by schemas.
const (
	TypeAny      = "any"
	TypeString   = "string"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeDuration = "duration"
	TypeList     = "list"
	TypeMap      = "map"
)

// KeySpec is the declarative form of a KeyConfig.
type KeySpec struct {
	Type        string        `yaml:"type" json:"type"`
	Default     interface{}   `yaml:"default,omitempty" json:"default,omitempty"`
	Enum        []interface{} `yaml:"enum,omitempty" json:"enum,omitempty"`
	Min         *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64      `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern     string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	WriteOnce   bool          `yaml:"write_once,omitempty" json:"write_once,omitempty"`
	Normalize   []string      `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema is a set of key specs plus names that may never become keys.
type Schema struct {
	Name   string             `yaml:"name,omitempty" json:"name,omitempty"`
	Keys   map[string]KeySpec `yaml:"keys" json:"keys"`
	Reject []string           `yaml:"reject,omitempty" json:"reject,omitempty"`
}

// LoadSchema reads a schema file, detecting the format from its extension.
func LoadSchema(path string) (*Schema, error) {
	absPath, err := validatePath(path)
	if err != nil {
		return nil, err
	}
	format := DetectFormat(absPath)
	if format == FormatUnknown {
		return nil, errors.New(ErrCodeUnsupportedFormat, "cannot detect schema format from extension").
			WithContext("path", path)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- path validated above
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeSchemaError, "failed to read schema file").
			WithContext("path", path)
	}
	return ParseSchema(data, format)
}

// ParseSchema decodes a schema and checks every key spec.
func ParseSchema(data []byte, format Format) (*Schema, error) {
	var s Schema
	if err := decode(data, format, &s); err != nil {
		return nil, err
	}
	for name, spec := range s.Keys {
		spec.Default = normalizeDecoded(spec.Default)
		for i, e := range spec.Enum {
			spec.Enum[i] = normalizeDecoded(e)
		}
		if spec.Type == "" {
			spec.Type = TypeAny
		}
		s.Keys[name] = spec
	}
	if _, err := s.Declaration(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Declaration compiles the schema into a Declaration.
func (s *Schema) Declaration() (Declaration, error) {
	decl := Declaration{Keys: make(Keys, len(s.Keys)), Reject: append([]string(nil), s.Reject...)}
	for name, spec := range s.Keys {
		cfg, err := spec.KeyConfig()
		if err != nil {
			return Declaration{}, errors.Wrap(err, ErrCodeSchemaError, "invalid key spec").
				WithContext("key", name)
		}
		decl.Keys[name] = cfg
	}
	return decl, nil
}

// KeyConfig compiles a single key spec.
func (k KeySpec) KeyConfig() (KeyConfig, error) {
	typeCheck, coerce, err := typeRules(k.Type)
	if err != nil {
		return KeyConfig{}, err
	}

	var pattern *regexp.Regexp
	if k.Pattern != "" {
		if pattern, err = regexp.Compile(k.Pattern); err != nil {
			return KeyConfig{}, errors.Wrap(err, ErrCodeSchemaError, "invalid pattern")
		}
	}
	if k.Min != nil && k.Max != nil && *k.Min > *k.Max {
		return KeyConfig{}, errors.New(ErrCodeSchemaError, fmt.Sprintf("min %v exceeds max %v", *k.Min, *k.Max))
	}

	clamp := false
	normalizers := make([]func(interface{}) interface{}, 0, len(k.Normalize))
	for _, op := range k.Normalize {
		switch op {
		case "trim":
			normalizers = append(normalizers, mapString(strings.TrimSpace))
		case "lower":
			normalizers = append(normalizers, mapString(strings.ToLower))
		case "upper":
			normalizers = append(normalizers, mapString(strings.ToUpper))
		case "clamp":
			clamp = true
			normalizers = append(normalizers, clampTo(k.Min, k.Max))
		default:
			return KeyConfig{}, errors.New(ErrCodeSchemaError, "unknown normalize operation: "+op)
		}
	}

	cfg := KeyConfig{
		WriteOnce:   k.WriteOnce,
		Description: k.Description,
	}

	cfg.Validator = func(value any, _ string) bool {
		if !typeCheck(value) {
			return false
		}
		if len(k.Enum) > 0 && !containsValue(k.Enum, value) {
			return false
		}
		if !clamp && !inRange(value, k.Min, k.Max) {
			return false
		}
		if pattern != nil {
			str, ok := value.(string)
			if !ok || !pattern.MatchString(str) {
				return false
			}
		}
		return true
	}

	if coerce != nil || len(normalizers) > 0 {
		cfg.Setter = func(newValue, _ any) any {
			v := newValue
			if coerce != nil && v != nil {
				v = coerce(v)
			}
			for _, n := range normalizers {
				v = n(v)
			}
			return v
		}
	}

	if k.Default != nil {
		def := k.Default
		if coerce != nil {
			if !typeCheck(def) {
				return KeyConfig{}, errors.New(ErrCodeSchemaError, fmt.Sprintf("default %v does not match type %s", def, k.Type))
			}
			def = coerce(def)
		}
		switch def.(type) {
		case map[string]interface{}, []interface{}:
			cfg.Default = FactoryDefault(func() any { return copyValue(def) })
		default:
			cfg.Default = SharedDefault(def)
		}
	}

	return cfg, nil
}

// typeRules returns the acceptance check and the coercion for a type name.
func typeRules(typeName string) (check func(interface{}) bool, coerce func(interface{}) interface{}, err error) {
	switch typeName {
	case TypeAny, "":
		return func(interface{}) bool { return true }, nil, nil
	case TypeString:
		return func(v interface{}) bool { _, ok := v.(string); return ok }, nil, nil
	case TypeBool:
		return func(v interface{}) bool { _, ok := v.(bool); return ok }, nil, nil
	case TypeInt:
		return func(v interface{}) bool {
				if f, ok := v.(float64); ok {
					return f == math.Trunc(f)
				}
				_, err := toInt64(v)
				return isNumber(v) && err == nil
			}, func(v interface{}) interface{} {
				i, _ := toInt(v)
				return i
			}, nil
	case TypeFloat:
		return isNumber, func(v interface{}) interface{} {
			f, _ := toFloat64(v)
			return f
		}, nil
	case TypeDuration:
		return func(v interface{}) bool {
				switch v.(type) {
				case time.Duration, string, int, int64:
					_, err := toDuration(v)
					return err == nil
				}
				return false
			}, func(v interface{}) interface{} {
				d, _ := toDuration(v)
				return d
			}, nil
	case TypeList:
		return func(v interface{}) bool {
			return v != nil && reflect.TypeOf(v).Kind() == reflect.Slice
		}, nil, nil
	case TypeMap:
		return func(v interface{}) bool { _, ok := v.(map[string]interface{}); return ok }, nil, nil
	default:
		return nil, nil, errors.New(ErrCodeSchemaError, "unknown key type: "+typeName)
	}
}

func mapString(fn func(string) string) func(interface{}) interface{} {
	return func(v interface{}) interface{} {
		if s, ok := v.(string); ok {
			return fn(s)
		}
		return v
	}
}

func clampTo(lo, hi *float64) func(interface{}) interface{} {
	return func(v interface{}) interface{} {
		f, err := toFloat64(v)
		if err != nil || !isNumber(v) {
			return v
		}
		clamped := f
		if lo != nil && clamped < *lo {
			clamped = *lo
		}
		if hi != nil && clamped > *hi {
			clamped = *hi
		}
		if clamped == f {
			return v
		}
		switch v.(type) {
		case int:
			return int(clamped)
		case int64:
			return int64(clamped)
		default:
			return clamped
		}
	}
}

// inRange applies min/max to numbers and to the length of strings and lists.
func inRange(value interface{}, lo, hi *float64) bool {
	if lo == nil && hi == nil {
		return true
	}
	var n float64
	switch v := value.(type) {
	case string:
		n = float64(len(v))
	case []interface{}:
		n = float64(len(v))
	default:
		if !isNumber(value) {
			return true
		}
		n, _ = toFloat64(value)
	}
	if lo != nil && n < *lo {
		return false
	}
	if hi != nil && n > *hi {
		return false
	}
	return true
}

func containsValue(values []interface{}, value interface{}) bool {
	for _, v := range values {
		if isNumber(v) && isNumber(value) {
			a, errA := toFloat64(v)
			b, errB := toFloat64(value)
			if errA == nil && errB == nil && a == b {
				return true
			}
			continue
		}
		if reflect.DeepEqual(v, value) {
			return true
		}
	}
	return false
}
