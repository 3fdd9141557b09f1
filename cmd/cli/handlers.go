// Command handlers for the statekeys CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/statekeys"
	cliutil "github.com/agilira/statekeys/internal/cli"
)

// handleKeys lists every key a schema declares with its type and default.
func (m *Manager) handleKeys(ctx *orpheus.Context) error {
	schemaPath, err := requireArg(ctx, 0, "schema")
	if err != nil {
		return err
	}
	schema, err := statekeys.LoadSchema(schemaPath)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(schema.Keys))
	for name := range schema.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Fprintln(m.out, "No keys declared")
		return nil
	}

	fmt.Fprintf(m.out, "Keys in %s:\n", schemaPath)
	for _, name := range names {
		spec := schema.Keys[name]
		line := fmt.Sprintf("  %s (%s)", name, spec.Type)
		if spec.Default != nil {
			line += " default=" + cliutil.FormatValue(spec.Default)
		}
		if spec.WriteOnce {
			line += " write-once"
		}
		if spec.Description != "" {
			line += " - " + spec.Description
		}
		fmt.Fprintln(m.out, line)
	}
	if len(schema.Reject) > 0 {
		fmt.Fprintf(m.out, "Rejected names: %v\n", schema.Reject)
	}
	return nil
}

// handleApply applies a values file and prints the published batch and state.
func (m *Manager) handleApply(ctx *orpheus.Context) error {
	schemaPath, err := requireArg(ctx, 0, "schema")
	if err != nil {
		return err
	}
	valuesPath, err := requireArg(ctx, 1, "values")
	if err != nil {
		return err
	}

	obj, queue, err := m.buildObject(schemaPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Dispose() }()

	values, err := loadValues(valuesPath)
	if err != nil {
		return err
	}

	asJSON := ctx.GetFlagBool("json")
	var published *statekeys.Batch
	obj.SetAll(values, func(b statekeys.Batch) { published = &b })
	queue.Drain()

	state := obj.GetAll()
	if asJSON {
		out, err := cliutil.JSONValues(state)
		if err != nil {
			return errors.Wrap(err, statekeys.ErrCodeInvalidConfig, "failed to render state as JSON")
		}
		fmt.Fprintln(m.out, out)
		return nil
	}

	if published == nil {
		fmt.Fprintln(m.out, "No keys changed")
	} else {
		fmt.Fprintf(m.out, "Changed %d key(s): %v\n", len(published.Keys), published.Keys)
	}
	if ignored := ignoredValues(obj, values); len(ignored) > 0 {
		fmt.Fprintf(m.out, "Ignored: %v\n", ignored)
	}
	fmt.Fprint(m.out, cliutil.FormatValues(state, "  "))
	return nil
}

// handleGet prints a single key after applying a values file.
func (m *Manager) handleGet(ctx *orpheus.Context) error {
	schemaPath, err := requireArg(ctx, 0, "schema")
	if err != nil {
		return err
	}
	valuesPath, err := requireArg(ctx, 1, "values")
	if err != nil {
		return err
	}
	key, err := requireArg(ctx, 2, "key")
	if err != nil {
		return err
	}

	obj, queue, err := m.buildObject(schemaPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Dispose() }()

	if !obj.HasKey(key) {
		return errors.New(statekeys.ErrCodeInvalidConfig, fmt.Sprintf("key '%s' is not declared by the schema", key))
	}

	values, err := loadValues(valuesPath)
	if err != nil {
		return err
	}
	obj.SetAll(values, nil)
	queue.Drain()

	fmt.Fprintln(m.out, cliutil.FormatValue(obj.Get(key)))
	return nil
}

// handleSet writes one value to a fresh object and reports whether it was accepted.
func (m *Manager) handleSet(ctx *orpheus.Context) error {
	schemaPath, err := requireArg(ctx, 0, "schema")
	if err != nil {
		return err
	}
	key, err := requireArg(ctx, 1, "key")
	if err != nil {
		return err
	}
	raw, err := requireArg(ctx, 2, "value")
	if err != nil {
		return err
	}

	obj, queue, err := m.buildObject(schemaPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Dispose() }()

	if !obj.HasKey(key) {
		return errors.New(statekeys.ErrCodeInvalidConfig, fmt.Sprintf("key '%s' is not declared by the schema", key))
	}

	var change *statekeys.Change
	unsubscribe := obj.OnChange(key, func(c statekeys.Change) { change = &c })
	defer unsubscribe()

	prev := obj.Get(key)
	obj.Set(key, cliutil.ParseValue(raw))
	queue.Drain()

	if change == nil {
		fmt.Fprintf(m.out, "%s unchanged (value %s was ignored or equal to %s)\n",
			key, cliutil.FormatValue(cliutil.ParseValue(raw)), cliutil.FormatValue(prev))
		return nil
	}
	fmt.Fprintf(m.out, "%s: %s -> %s\n", key, cliutil.FormatValue(change.PrevVal), cliutil.FormatValue(change.NewVal))
	return nil
}

// handleWatch applies a values file on a loop every time the file changes.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	schemaPath, err := requireArg(ctx, 0, "schema")
	if err != nil {
		return err
	}
	valuesPath, err := requireArg(ctx, 1, "values")
	if err != nil {
		return err
	}

	interval, err := cliutil.ParseInterval(ctx.GetFlagString("interval"))
	if err != nil {
		return errors.Wrap(err, statekeys.ErrCodeInvalidConfig, "invalid --interval")
	}
	var limit time.Duration
	if d := ctx.GetFlagString("duration"); d != "" {
		if limit, err = cliutil.ParseInterval(d); err != nil {
			return errors.Wrap(err, statekeys.ErrCodeInvalidConfig, "invalid --duration")
		}
	}

	loopConfig, err := statekeys.LoadLoopConfigFromEnv()
	if err != nil {
		return err
	}
	loop := statekeys.NewLoop(*loopConfig)
	if err := loop.Start(); err != nil {
		return err
	}
	defer func() { _ = loop.Stop() }()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, limit)
		defer cancel()
	}

	var obj *statekeys.Object
	var buildErr error
	if err := loop.Do(runCtx, func() {
		obj, _, buildErr = m.buildObject(schemaPath, loop)
	}); err != nil {
		return err
	}
	if buildErr != nil {
		return buildErr
	}

	out := &lockedWriter{w: m.out}
	watcher, err := statekeys.NewValuesWatcher(valuesPath, loop, obj, statekeys.WatchConfig{
		PollInterval: interval,
		OnApplied: func(b statekeys.Batch) {
			fmt.Fprintf(out, "[%s] changed: %v\n", b.At.Format(time.RFC3339), b.Keys)
			for _, k := range b.Keys {
				c := b.Changes[k]
				fmt.Fprintf(out, "  %s: %s -> %s\n", k, cliutil.FormatValue(c.PrevVal), cliutil.FormatValue(c.NewVal))
			}
		},
		ErrorHandler: func(err error, source string) {
			fmt.Fprintf(out, "error (%s): %v\n", source, err)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (interval: %v)\n", watcher.Path(), interval)
	if err := watcher.Start(); err != nil {
		return err
	}
	<-runCtx.Done()
	_ = watcher.Stop()
	_ = loop.Stop()
	_ = obj.Dispose()

	fmt.Fprintf(out, "Applied %d version(s)\n", watcher.Applied())
	return nil
}

// handleAuditStats prints the statistics of an audit backend.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	config := statekeys.DefaultAuditConfig()
	config.OutputFile = ctx.GetFlagString("file")
	config.FlushInterval = 0

	logger, err := statekeys.NewAuditLogger(config)
	if err != nil {
		return errors.Wrap(err, statekeys.ErrCodeInvalidAuditConfig, "failed to open audit backend")
	}
	defer func() { _ = logger.Close() }()

	stats, err := logger.Stats()
	if err != nil {
		return errors.Wrap(err, statekeys.ErrCodeInvalidAuditConfig, "failed to read audit statistics")
	}

	fmt.Fprintf(m.out, "Total events: %d\n", stats.TotalEvents)
	fmt.Fprintf(m.out, "Schema version: %d\n", stats.SchemaVersion)
	fmt.Fprintf(m.out, "Size: %d bytes\n", stats.DatabaseSize)
	if stats.OldestEvent != nil && stats.NewestEvent != nil {
		fmt.Fprintf(m.out, "Range: %s .. %s\n", stats.OldestEvent.Format(time.RFC3339), stats.NewestEvent.Format(time.RFC3339))
	}
	printCounts(m, "By level", stats.EventsByLevel)
	printCounts(m, "By object", stats.EventsByObject)
	return nil
}

// handleInfo prints version and, with --verbose, the environment configuration.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	fmt.Fprintf(m.out, "statekeys %s\n", Version)
	fmt.Fprintf(m.out, "Schema formats: %s, %s\n", statekeys.FormatJSON, statekeys.FormatYAML)
	fmt.Fprintf(m.out, "Audit logging: %v\n", m.auditLogger.Enabled())

	if !ctx.GetFlagBool("verbose") {
		return nil
	}
	env, err := statekeys.LoadEnvConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, "\nEnvironment:")
	fmt.Fprintf(m.out, "  STATEKEYS_NAME=%s\n", env.Name)
	fmt.Fprintf(m.out, "  STATEKEYS_REJECTED_KEYS=%v\n", env.RejectedKeys)
	fmt.Fprintf(m.out, "  STATEKEYS_AUDIT_ENABLED=%v\n", env.AuditEnabled)
	fmt.Fprintf(m.out, "  STATEKEYS_AUDIT_MIN_LEVEL=%s\n", env.AuditMinLevel)
	fmt.Fprintf(m.out, "  STATEKEYS_LOOP_CAPACITY=%d\n", env.LoopCapacity)
	return nil
}

func printCounts(m *Manager, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(m.out, "%s:\n", title)
	for _, name := range names {
		label := name
		if label == "" {
			label = "(none)"
		}
		fmt.Fprintf(m.out, "  %s: %d\n", label, counts[name])
	}
}
