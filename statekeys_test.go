// statekeys_test.go: Tests for object construction and key lifecycle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"reflect"
	"strings"
	"testing"
)

// newTestObject returns an object driven by an explicit turn queue.
func newTestObject(t *testing.T) (*Object, *TurnQueue) {
	t.Helper()
	queue := NewTurnQueue()
	obj, err := New(Config{Name: "test", Scheduler: queue})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = obj.Dispose() })
	return obj, queue
}

func TestNewDefaults(t *testing.T) {
	obj, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = obj.Dispose() }()

	if obj.Name() != "object" {
		t.Errorf("expected default name 'object', got %q", obj.Name())
	}
	if obj.ID() == "" {
		t.Error("expected a generated object ID")
	}
	if obj.Emitter() == nil {
		t.Error("expected a default emitter")
	}
	if !obj.IsRejected("config") {
		t.Error("'config' should be rejected by default")
	}
	if obj.IsDisposed() {
		t.Error("new object should not be disposed")
	}
}

func TestObjectIDsAreUnique(t *testing.T) {
	a, _ := newTestObject(t)
	b, _ := newTestObject(t)
	if a.ID() == b.ID() {
		t.Errorf("expected distinct IDs, got %q twice", a.ID())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{RejectedKeys: []string{"ok", " "}})
	if err == nil {
		t.Fatal("expected an error for an empty rejected key")
	}
	if code := GetValidationErrorCode(err); code != ErrCodeInvalidConfig {
		t.Errorf("expected %s, got %s", ErrCodeInvalidConfig, code)
	}
}

func TestLazyInitializationUsesDefault(t *testing.T) {
	obj, _ := newTestObject(t)
	if err := obj.RegisterKey("volume", KeyConfig{Default: SharedDefault(50)}, nil); err != nil {
		t.Fatalf("RegisterKey failed: %v", err)
	}

	state, ok := obj.State("volume")
	if !ok || state != StateUninitialized {
		t.Fatalf("expected uninitialized key, got %v (registered=%v)", state, ok)
	}

	if got := obj.Get("volume"); got != 50 {
		t.Errorf("expected default 50, got %v", got)
	}
	if state, _ := obj.State("volume"); state != StateInitialized {
		t.Errorf("expected initialized after first read, got %v", state)
	}
	if obj.HasBeenSet("volume") {
		t.Error("a default should not count as an explicit write")
	}
}

func TestInitialValueWinsOverDefault(t *testing.T) {
	obj, _ := newTestObject(t)
	err := obj.RegisterKeys(Keys{
		"title": {Default: SharedDefault("untitled")},
	}, map[string]any{"title": "Intro"})
	if err != nil {
		t.Fatalf("RegisterKeys failed: %v", err)
	}

	if !obj.HasBeenSet("title") {
		t.Error("a pending initial value should count as set")
	}
	if got := obj.Get("title"); got != "Intro" {
		t.Errorf("expected initial value 'Intro', got %v", got)
	}
	if !obj.HasBeenSet("title") {
		t.Error("the consumed initial value should count as set")
	}
}

func TestFalsyInitialValueCountsAsSet(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKeys(Keys{
		"count": {Default: SharedDefault(10)},
		"label": {Default: SharedDefault("x")},
		"on":    {Default: SharedDefault(true)},
	}, map[string]any{"count": 0, "label": "", "on": false})

	for _, name := range []string{"count", "label", "on"} {
		if !obj.HasBeenSet(name) {
			t.Errorf("%s: a zero initial value is still a supplied value", name)
		}
	}
	if obj.Get("count") != 0 || obj.Get("label") != "" || obj.Get("on") != false {
		t.Errorf("zero initial values should win over defaults: %v", obj.GetAll())
	}
}

func TestNilInitialValueIsAbsent(t *testing.T) {
	obj, _ := newTestObject(t)
	if err := obj.RegisterKey("title", KeyConfig{Default: SharedDefault("untitled")}, nil); err != nil {
		t.Fatalf("RegisterKey failed: %v", err)
	}
	if got := obj.Get("title"); got != "untitled" {
		t.Errorf("expected default, got %v", got)
	}
}

func TestInvalidInitialValueFallsBackToDefault(t *testing.T) {
	obj, _ := newTestObject(t)
	err := obj.RegisterKeys(Keys{
		"volume": {Validator: IsType[int](), Default: SharedDefault(50)},
	}, map[string]any{"volume": "loud"})
	if err != nil {
		t.Fatalf("RegisterKeys failed: %v", err)
	}
	if got := obj.Get("volume"); got != 50 {
		t.Errorf("expected default after rejected initial value, got %v", got)
	}
}

func TestDefaultBypassesValidator(t *testing.T) {
	obj, _ := newTestObject(t)
	err := obj.RegisterKey("mode", KeyConfig{
		Validator: func(any, string) bool { return false },
		Default:   SharedDefault("fallback"),
	}, nil)
	if err != nil {
		t.Fatalf("RegisterKey failed: %v", err)
	}
	if got := obj.Get("mode"); got != "fallback" {
		t.Errorf("expected the default to be stored without validation, got %v", got)
	}
}

func TestFactoryDefaultIsPerObject(t *testing.T) {
	cfg := Keys{"tracks": {Default: FactoryDefault(func() any { return []string{} })}}

	a, _ := newTestObject(t)
	b, _ := newTestObject(t)
	if err := a.RegisterKeys(cfg, nil); err != nil {
		t.Fatalf("RegisterKeys failed: %v", err)
	}
	if err := b.RegisterKeys(cfg, nil); err != nil {
		t.Fatalf("RegisterKeys failed: %v", err)
	}

	ta := a.Get("tracks").([]string)
	tb := b.Get("tracks").([]string)
	ta = append(ta, "one")
	a.Set("tracks", ta)

	if len(b.Get("tracks").([]string)) != 0 || len(tb) != 0 {
		t.Error("factory defaults must not be shared between objects")
	}
}

func TestSharedDefaultIsShared(t *testing.T) {
	shared := map[string]any{"k": "v"}
	cfg := Keys{"meta": {Default: SharedDefault(shared)}}

	a, _ := newTestObject(t)
	b, _ := newTestObject(t)
	_ = a.RegisterKeys(cfg, nil)
	_ = b.RegisterKeys(cfg, nil)

	ma := a.Get("meta").(map[string]any)
	mb := b.Get("meta").(map[string]any)
	if reflect.ValueOf(ma).Pointer() != reflect.ValueOf(mb).Pointer() {
		t.Error("shared defaults should be the same value in every object")
	}
}

func TestFactoryDefaultNilFunc(t *testing.T) {
	if FactoryDefault(nil) != nil {
		t.Error("FactoryDefault(nil) should return nil")
	}
}

func TestValidatorDropsWritesSilently(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("volume", KeyConfig{
		Validator: func(v any, _ string) bool {
			n, ok := v.(int)
			return ok && n >= 0 && n <= 100
		},
		Default: SharedDefault(50),
	}, nil)

	obj.Set("volume", 150)
	if got := obj.Get("volume"); got != 50 {
		t.Errorf("rejected write should leave the value unchanged, got %v", got)
	}
	obj.Set("volume", 70)
	if got := obj.Get("volume"); got != 70 {
		t.Errorf("expected 70, got %v", got)
	}
}

func TestValidatorReceivesKeyName(t *testing.T) {
	obj, _ := newTestObject(t)
	var seen string
	_ = obj.RegisterKey("speed", KeyConfig{
		Validator: func(_ any, key string) bool {
			seen = key
			return true
		},
	}, nil)
	obj.Set("speed", 1)
	if seen != "speed" {
		t.Errorf("validator should receive the key name, got %q", seen)
	}
}

func TestSetterNormalizesAndSeesPrevious(t *testing.T) {
	obj, _ := newTestObject(t)
	var prevSeen []any
	_ = obj.RegisterKey("name", KeyConfig{
		Setter: func(v, prev any) any {
			prevSeen = append(prevSeen, prev)
			return strings.ToUpper(v.(string))
		},
		Default: SharedDefault("anon"),
	}, nil)

	obj.Set("name", "bob")
	if got := obj.Get("name"); got != "BOB" {
		t.Errorf("expected normalized value BOB, got %v", got)
	}
	// The default fill runs the setter with no previous value.
	want := []any{nil, "ANON"}
	if !reflect.DeepEqual(prevSeen, want) {
		t.Errorf("setter previous values = %v, want %v", prevSeen, want)
	}
}

func TestWriteOnce(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("id", KeyConfig{WriteOnce: true}, nil)

	if !obj.CanWrite("id") {
		t.Error("unwritten write-once key should be writable")
	}
	obj.Set("id", "first")
	obj.Set("id", "second")

	if got := obj.Get("id"); got != "first" {
		t.Errorf("expected first write to stick, got %v", got)
	}
	if obj.CanWrite("id") {
		t.Error("written write-once key should not be writable")
	}
}

func TestWriteOnceRejectedWriteDoesNotConsume(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("id", KeyConfig{WriteOnce: true, Validator: IsType[string]()}, nil)

	obj.Set("id", 42)
	if !obj.CanWrite("id") {
		t.Fatal("a rejected write must not consume the write-once slot")
	}
	obj.Set("id", "ok")
	if got := obj.Get("id"); got != "ok" {
		t.Errorf("expected 'ok', got %v", got)
	}
}

func TestWriteOnceInitialValue(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("id", KeyConfig{WriteOnce: true}, "p-1")

	// The first write consumes the initial value, which closes the key.
	obj.Set("id", "p-2")
	if got := obj.Get("id"); got != "p-1" {
		t.Errorf("expected initial value to win, got %v", got)
	}
	if obj.CanWrite("id") {
		t.Error("a consumed initial value should close a write-once key")
	}
}

func TestWriteOnceDefaultDoesNotConsume(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("id", KeyConfig{WriteOnce: true, Default: SharedDefault("none")}, nil)

	if got := obj.Get("id"); got != "none" {
		t.Fatalf("expected default, got %v", got)
	}
	obj.Set("id", "assigned")
	if got := obj.Get("id"); got != "assigned" {
		t.Errorf("default must not close a write-once key, got %v", got)
	}
}

func TestPlainProperties(t *testing.T) {
	obj, _ := newTestObject(t)
	obj.Set("note", "free")
	if got := obj.Get("note"); got != "free" {
		t.Errorf("plain property should round-trip, got %v", got)
	}
	if obj.HasKey("note") {
		t.Error("plain property should not be a state key")
	}
	if !obj.CanWrite("note") {
		t.Error("plain properties are always writable")
	}
	if _, ok := obj.State("note"); ok {
		t.Error("State should report unregistered names")
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	obj, queue := newTestObject(t)
	_ = obj.RegisterKey("a", KeyConfig{}, nil)

	var batches int
	obj.OnBatch(func(Batch) { batches++ })
	obj.Get("a")
	obj.Set("a", 1)

	if err := obj.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if err := obj.Dispose(); err != nil {
		t.Fatalf("second Dispose failed: %v", err)
	}
	queue.Drain()

	if batches != 0 {
		t.Error("a disposed object must not publish its pending batch")
	}
	if !obj.IsDisposed() {
		t.Error("IsDisposed should be true")
	}
	if _, ok := obj.Accessor("a"); ok {
		t.Error("Dispose should remove installed accessors")
	}
	if err := obj.RegisterKey("b", KeyConfig{}, nil); GetValidationErrorCode(err) != ErrCodeObjectDisposed {
		t.Errorf("expected %s after dispose, got %v", ErrCodeObjectDisposed, err)
	}
}

func TestDisposedObjectIsInert(t *testing.T) {
	obj, queue := newTestObject(t)
	_ = obj.RegisterKey("a", KeyConfig{Default: SharedDefault(1)}, nil)
	obj.Get("a")

	var events, configChanges int
	obj.OnAnyChange(func(Change) { events++ })
	obj.OnConfigChange(func(ConfigChange) { configChanges++ })

	if err := obj.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	obj.Set("a", 2)
	obj.Set("plain", "x")
	obj.SetAll(map[string]any{"a": 3}, nil)
	queue.Drain()

	if got := obj.Get("a"); got != 1 {
		t.Errorf("a disposed object must keep its values, got %v", got)
	}
	if obj.Get("plain") != nil {
		t.Error("a disposed object must not store plain properties")
	}
	if events != 0 || configChanges != 0 {
		t.Errorf("a disposed object must not emit, got %d changes and %d config changes", events, configChanges)
	}
	if obj.HasPendingBatch() {
		t.Error("a disposed object must not open a batch")
	}
}

func TestLifecycleStateString(t *testing.T) {
	tests := map[LifecycleState]string{
		StateUninitialized:       "uninitialized",
		StateInitializing:        "initializing",
		StateInitializingDefault: "initializing_default",
		StateInitialized:         "initialized",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
