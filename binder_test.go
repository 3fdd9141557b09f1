// binder_test.go: Tests for binding variables to state keys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"testing"
	"time"
)

func TestBinderApply(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKeys(Keys{
		"name":    {Default: SharedDefault("player")},
		"volume":  {Default: SharedDefault(50)},
		"muted":   {Default: SharedDefault("true")},
		"gain":    {Default: SharedDefault(1)},
		"fade":    {Default: SharedDefault("250ms")},
		"frames":  {Default: SharedDefault(int64(9))},
		"missing": {},
	}, nil)

	var (
		name    string
		volume  int
		muted   bool
		gain    float64
		fade    time.Duration
		frames  int64
		missing = "keep"
		withDef int
	)
	err := NewBinder(obj).
		BindString(&name, "name").
		BindInt(&volume, "volume").
		BindBool(&muted, "muted").
		BindFloat64(&gain, "gain").
		BindDuration(&fade, "fade").
		BindInt64(&frames, "frames").
		BindString(&missing, "missing").
		BindInt(&withDef, "undeclared", 7).
		Apply()
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if name != "player" || volume != 50 || !muted || gain != 1 || fade != 250*time.Millisecond || frames != 9 {
		t.Errorf("unexpected bound values: %q %d %v %v %v %d", name, volume, muted, gain, fade, frames)
	}
	if missing != "keep" {
		t.Errorf("unset keys without a default should leave the variable alone, got %q", missing)
	}
	if withDef != 7 {
		t.Errorf("expected binding default 7, got %d", withDef)
	}
}

func TestBinderDottedKeys(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("database", KeyConfig{}, map[string]interface{}{
		"host": "localhost",
		"pool": map[string]interface{}{"size": 4},
	})

	var host string
	var size int
	var absent = "none"
	err := NewBinder(obj).
		BindString(&host, "database.host").
		BindInt(&size, "database.pool.size").
		BindString(&absent, "database.user").
		Apply()
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if host != "localhost" || size != 4 || absent != "none" {
		t.Errorf("unexpected values: host=%q size=%d absent=%q", host, size, absent)
	}
}

func TestBinderConversionError(t *testing.T) {
	obj, _ := newTestObject(t)
	_ = obj.RegisterKey("volume", KeyConfig{}, "loud")

	var volume int
	err := NewBinder(obj).BindInt(&volume, "volume").Apply()
	if code := GetValidationErrorCode(err); code != ErrCodeBindError {
		t.Errorf("expected %s, got %v", ErrCodeBindError, err)
	}
}

func TestBinderAttach(t *testing.T) {
	obj, queue := newTestObject(t)
	registerCounter(t, obj, "volume", "other")

	var volume int
	binder := NewBinder(obj).BindInt(&volume, "volume")
	detach := binder.Attach()

	obj.Set("volume", 30)
	if volume != 0 {
		t.Fatal("attached bindings should update on flush, not on write")
	}
	queue.Drain()
	if volume != 30 {
		t.Errorf("expected 30 after flush, got %d", volume)
	}

	detach()
	obj.Set("volume", 40)
	queue.Drain()
	if volume != 30 {
		t.Errorf("detached binder should not update, got %d", volume)
	}
}

func TestBinderAttachReportsErrors(t *testing.T) {
	var reported []string
	queue := NewTurnQueue()
	obj, err := New(Config{
		Name:      "bound",
		Scheduler: queue,
		ErrorHandler: func(err error, source string) {
			reported = append(reported, source)
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = obj.Dispose() }()
	_ = obj.RegisterKey("volume", KeyConfig{Default: SharedDefault(1)}, nil)

	var volume int
	NewBinder(obj).BindInt(&volume, "volume").Attach()

	obj.Set("volume", "loud")
	queue.Drain()

	if len(reported) != 1 || reported[0] != "binder" {
		t.Errorf("expected one binder error, got %v", reported)
	}
}
