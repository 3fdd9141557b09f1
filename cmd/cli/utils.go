// Utility functions for the statekeys CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/statekeys"
	cliutil "github.com/agilira/statekeys/internal/cli"
)

// requireArg returns positional argument i or an error naming it.
func requireArg(ctx *orpheus.Context, i int, name string) (string, error) {
	value := ctx.GetArg(i)
	if value == "" {
		return "", errors.New(statekeys.ErrCodeInvalidConfig, fmt.Sprintf("missing <%s> argument", name))
	}
	return value, nil
}

// buildObject loads a schema and registers it on a new object. A nil
// scheduler selects a TurnQueue, which is returned so callers can drain it.
func (m *Manager) buildObject(schemaPath string, scheduler statekeys.Scheduler) (*statekeys.Object, *statekeys.TurnQueue, error) {
	schema, err := statekeys.LoadSchema(schemaPath)
	if err != nil {
		return nil, nil, err
	}
	decl, err := schema.Declaration()
	if err != nil {
		return nil, nil, err
	}

	config, err := statekeys.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if schema.Name != "" {
		config.Name = schema.Name
	}
	config.AuditLogger = m.auditLogger

	var queue *statekeys.TurnQueue
	if scheduler == nil {
		queue = statekeys.NewTurnQueue()
		scheduler = queue
	}
	config.Scheduler = scheduler

	obj, err := statekeys.New(*config)
	if err != nil {
		return nil, nil, err
	}
	if err := obj.RegisterDeclaration(decl, nil); err != nil {
		_ = obj.Dispose()
		return nil, nil, err
	}
	return obj, queue, nil
}

// loadValues reads a JSON or YAML values file.
func loadValues(path string) (map[string]interface{}, error) {
	format := statekeys.DetectFormat(path)
	if format == statekeys.FormatUnknown {
		return nil, errors.New(statekeys.ErrCodeUnsupportedFormat, "cannot detect values format from extension").
			WithContext("path", path)
	}
	// #nosec G304 -- user-supplied path is the point of the command
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, statekeys.ErrCodeInvalidConfig, "failed to read values file").
			WithContext("path", path)
	}
	return statekeys.ParseValues(data, format)
}

// ignoredValues lists declared keys whose supplied value was dropped by
// the key's validator.
func ignoredValues(obj *statekeys.Object, values map[string]interface{}) []string {
	var ignored []string
	for _, key := range cliutil.SortedKeys(values) {
		if obj.HasKey(key) && !obj.HasBeenSet(key) {
			ignored = append(ignored, key)
		}
	}
	return ignored
}

// lockedWriter serializes writes coming from the loop and watcher goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
