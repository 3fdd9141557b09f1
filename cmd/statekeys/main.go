// statekeys: command-line entry point
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/statekeys"
	"github.com/agilira/statekeys/cmd/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	manager := cli.NewManager()

	// One shared audit logger for every object the commands create
	config, err := statekeys.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if config.Audit.Enabled {
		logger, err := statekeys.NewAuditLogger(config.WithDefaults().Audit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() { _ = logger.Close() }()
		manager.WithAudit(logger)
	}

	if err := manager.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
