// schema_test.go: Tests for declarative schemas
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const playerSchemaYAML = `
name: player
keys:
  title:
    type: string
    default: untitled
    normalize: [trim]
    description: Display title
  volume:
    type: int
    default: 50
    min: 0
    max: 100
  gain:
    type: float
    default: 1
    min: 0
    max: 2
    normalize: [clamp]
  mode:
    type: string
    enum: [shuffle, repeat]
  code:
    type: string
    pattern: "^[A-Za-z]{3}$"
    normalize: [upper]
  fade:
    type: duration
    default: 2s
  tags:
    type: list
    default: [a, b]
  meta:
    type: map
    default:
      source: local
  id:
    type: string
    write_once: true
reject: [internal]
`

func newSchemaObject(t *testing.T, source string, format Format) (*Object, *Schema) {
	t.Helper()
	schema, err := ParseSchema([]byte(source), format)
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}
	decl, err := schema.Declaration()
	if err != nil {
		t.Fatalf("Declaration failed: %v", err)
	}
	obj, _ := newTestObject(t)
	if err := obj.RegisterDeclaration(decl, nil); err != nil {
		t.Fatalf("RegisterDeclaration failed: %v", err)
	}
	return obj, schema
}

func TestParseSchemaYAML(t *testing.T) {
	obj, schema := newSchemaObject(t, playerSchemaYAML, FormatYAML)

	if schema.Name != "player" || len(schema.Keys) != 9 {
		t.Errorf("unexpected schema: name=%q keys=%d", schema.Name, len(schema.Keys))
	}
	if !obj.IsRejected("internal") {
		t.Error("schema reject list should apply")
	}

	defaults := map[string]any{
		"title":  "untitled",
		"volume": 50,
		"gain":   1.0,
		"fade":   2 * time.Second,
		"tags":   []interface{}{"a", "b"},
		"meta":   map[string]interface{}{"source": "local"},
		"mode":   nil,
	}
	for key, want := range defaults {
		if got := obj.Get(key); !reflect.DeepEqual(got, want) {
			t.Errorf("default of %s = %#v, want %#v", key, got, want)
		}
	}
}

func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		key   string
		value any
		want  any
	}{
		{"title", "  Night Drive ", "Night Drive"},
		{"title", 42, "untitled"},
		{"volume", 70, 70},
		{"volume", 70.0, 70},
		{"volume", 70.5, 50},
		{"volume", 500, 50},
		{"volume", "70", 50},
		{"gain", 5, 2.0},
		{"gain", -1.5, 0.0},
		{"gain", 1.5, 1.5},
		{"mode", "shuffle", "shuffle"},
		{"mode", "random", nil},
		{"code", "abc", "ABC"},
		{"code", "abcd", nil},
		{"fade", "500ms", 500 * time.Millisecond},
		{"fade", "soon", 2 * time.Second},
		{"tags", []string{"x"}, []string{"x"}},
		{"tags", "x", []interface{}{"a", "b"}},
		{"meta", map[string]interface{}{"k": 1}, map[string]interface{}{"k": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			obj, _ := newSchemaObject(t, playerSchemaYAML, FormatYAML)
			obj.Set(tt.key, tt.value)
			if got := obj.Get(tt.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Set(%s, %#v) stored %#v, want %#v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestSchemaWriteOnce(t *testing.T) {
	obj, _ := newSchemaObject(t, playerSchemaYAML, FormatYAML)
	obj.Set("id", "p-1")
	obj.Set("id", "p-2")
	if got := obj.Get("id"); got != "p-1" {
		t.Errorf("expected write-once id p-1, got %v", got)
	}
}

func TestSchemaFactoryDefaultsAreCopied(t *testing.T) {
	schema, err := ParseSchema([]byte(playerSchemaYAML), FormatYAML)
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}
	decl, _ := schema.Declaration()

	a, _ := newTestObject(t)
	b, _ := newTestObject(t)
	_ = a.RegisterDeclaration(decl, nil)
	_ = b.RegisterDeclaration(decl, nil)

	a.Get("meta").(map[string]interface{})["source"] = "changed"
	if got := b.Get("meta").(map[string]interface{})["source"]; got != "local" {
		t.Errorf("map defaults must be per object, got %v", got)
	}
}

func TestParseSchemaJSON(t *testing.T) {
	source := `{
		"keys": {
			"retries": {"type": "int", "default": 3, "min": 0, "max": 10},
			"ratio": {"type": "float", "default": 0.5}
		}
	}`
	obj, schema := newSchemaObject(t, source, FormatJSON)

	if schema.Keys["retries"].Default != 3 {
		t.Errorf("JSON integers should decode as int, got %#v", schema.Keys["retries"].Default)
	}
	if got := obj.Get("ratio"); got != 0.5 {
		t.Errorf("unexpected ratio default %#v", got)
	}
	obj.Set("retries", 11)
	if got := obj.Get("retries"); got != 3 {
		t.Errorf("out-of-range write should be dropped, got %v", got)
	}
}

func TestParseSchemaErrors(t *testing.T) {
	tests := map[string]string{
		"unknown type":       "keys:\n  a:\n    type: color\n",
		"unknown normalizer": "keys:\n  a:\n    type: string\n    normalize: [reverse]\n",
		"bad pattern":        "keys:\n  a:\n    type: string\n    pattern: \"[\"\n",
		"min above max":      "keys:\n  a:\n    type: int\n    min: 5\n    max: 1\n",
		"bad default":        "keys:\n  a:\n    type: int\n    default: many\n",
		"invalid yaml":       "keys: [\n",
	}

	for name, source := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema([]byte(source), FormatYAML)
			if code := GetValidationErrorCode(err); code != ErrCodeSchemaError {
				t.Errorf("expected %s, got %v", ErrCodeSchemaError, err)
			}
		})
	}
}

func TestParseSchemaDefaultsTypeToAny(t *testing.T) {
	schema, err := ParseSchema([]byte("keys:\n  free: {}\n"), FormatYAML)
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}
	if schema.Keys["free"].Type != TypeAny {
		t.Errorf("expected type %q, got %q", TypeAny, schema.Keys["free"].Type)
	}
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.yaml")
	if err := os.WriteFile(path, []byte(playerSchemaYAML), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	schema, err := LoadSchema(path)
	if err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	if schema.Name != "player" {
		t.Errorf("unexpected schema name %q", schema.Name)
	}

	if _, err := LoadSchema(filepath.Join(dir, "player.toml")); GetValidationErrorCode(err) != ErrCodeUnsupportedFormat {
		t.Errorf("expected %s, got %v", ErrCodeUnsupportedFormat, err)
	}
	if _, err := LoadSchema(filepath.Join(dir, "missing.yaml")); GetValidationErrorCode(err) != ErrCodeSchemaError {
		t.Errorf("expected %s, got %v", ErrCodeSchemaError, err)
	}
	if _, err := LoadSchema("../etc/player.yaml"); GetValidationErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("expected traversal to be rejected, got %v", err)
	}
}
