// Package cli provides the command-line interface for statekeys schemas.
//
// The CLI loads a key schema, builds an object from it and lets the user
// inspect keys, apply values files, try single writes and watch a values
// file for changes. It is built on the Orpheus framework.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"

	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/statekeys"
)

// Version is the CLI version reported by --version and info.
const Version = "1.0.0"

// Manager wires the statekeys commands into an Orpheus application.
type Manager struct {
	app         *orpheus.App
	out         io.Writer
	auditLogger *statekeys.AuditLogger // Optional audit integration
}

// NewManager creates a CLI manager writing to standard output.
func NewManager() *Manager {
	app := orpheus.New("statekeys").
		SetDescription("Reactive state keys: inspect schemas and apply values").
		SetVersion(Version)

	manager := &Manager{
		app: app,
		out: os.Stdout,
	}

	manager.setupSchemaCommands()
	manager.setupWatchCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records the operations of every object the CLI creates.
func (m *Manager) WithAudit(auditLogger *statekeys.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// WithOutput redirects command output.
func (m *Manager) WithOutput(w io.Writer) *Manager {
	if w != nil {
		m.out = w
	}
	return m
}

// Run executes the CLI application with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupSchemaCommands configures the commands that work on a schema file.
func (m *Manager) setupSchemaCommands() {
	// keys <schema>
	keysCmd := orpheus.NewCommand("keys", "List the keys declared by a schema").
		SetHandler(m.handleKeys)
	m.app.AddCommand(keysCmd)

	// apply <schema> <values> [--json]
	applyCmd := orpheus.NewCommand("apply", "Apply a values file and print the resulting state").
		AddBoolFlag("json", "j", false, "Print the resulting state as JSON").
		SetHandler(m.handleApply)
	m.app.AddCommand(applyCmd)

	// get <schema> <values> <key>
	getCmd := orpheus.NewCommand("get", "Print one key after applying a values file").
		SetHandler(m.handleGet)
	m.app.AddCommand(getCmd)

	// set <schema> <key> <value>
	setCmd := orpheus.NewCommand("set", "Try a single write against a schema").
		SetHandler(m.handleSet)
	m.app.AddCommand(setCmd)
}

// setupWatchCommands configures the 'watch' command.
func (m *Manager) setupWatchCommands() {
	// watch <schema> <values> [--interval=1s] [--duration=0]
	watchCmd := orpheus.NewCommand("watch", "Apply a values file every time it changes").
		AddFlag("interval", "i", "1s", "Polling interval").
		AddFlag("duration", "d", "", "Stop after this long (default: until interrupted)").
		SetHandler(m.handleWatch)
	m.app.AddCommand(watchCmd)
}

// setupUtilityCommands configures audit and diagnostics commands.
func (m *Manager) setupUtilityCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit log inspection")

	statsCmd := auditCmd.Subcommand("stats", "Show audit backend statistics", m.handleAuditStats)
	statsCmd.AddFlag("file", "f", "", "Audit file (default: unified SQLite database)")

	m.app.AddCommand(auditCmd)

	infoCmd := orpheus.NewCommand("info", "Version and environment configuration").
		AddBoolFlag("verbose", "v", false, "Include environment configuration").
		SetHandler(m.handleInfo)
	m.app.AddCommand(infoCmd)
}
