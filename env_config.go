// env_config.go: Environment variable support for statekeys configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/caarlos0/env/v11"
)

// EnvConfig represents configuration loaded from STATEKEYS_* variables.
type EnvConfig struct {
	// Object configuration
	Name         string   `env:"STATEKEYS_NAME"`
	RejectedKeys []string `env:"STATEKEYS_REJECTED_KEYS" envSeparator:","`

	// Audit configuration
	AuditEnabled       bool          `env:"STATEKEYS_AUDIT_ENABLED"`
	AuditOutputFile    string        `env:"STATEKEYS_AUDIT_OUTPUT_FILE"`
	AuditMinLevel      string        `env:"STATEKEYS_AUDIT_MIN_LEVEL" envDefault:"info"`
	AuditBufferSize    int           `env:"STATEKEYS_AUDIT_BUFFER_SIZE"`
	AuditFlushInterval time.Duration `env:"STATEKEYS_AUDIT_FLUSH_INTERVAL"`

	// Loop configuration
	LoopCapacity  int64         `env:"STATEKEYS_LOOP_CAPACITY"`
	LoopBatchSize int64         `env:"STATEKEYS_LOOP_BATCH_SIZE"`
	LoopIdleSleep time.Duration `env:"STATEKEYS_LOOP_IDLE_SLEEP"`
}

// LoadEnvConfig parses the STATEKEYS_* environment variables.
func LoadEnvConfig() (*EnvConfig, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}
	return &ec, nil
}

// LoadConfigFromEnv builds an object Config from the environment.
// Fields that cannot come from the environment, such as the scheduler,
// are left for WithDefaults.
func LoadConfigFromEnv() (*Config, error) {
	ec, err := LoadEnvConfig()
	if err != nil {
		return nil, err
	}
	return ec.ObjectConfig()
}

// LoadLoopConfigFromEnv builds a LoopConfig from the environment.
func LoadLoopConfigFromEnv() (*LoopConfig, error) {
	ec, err := LoadEnvConfig()
	if err != nil {
		return nil, err
	}
	return ec.LoopConfig(), nil
}

// ObjectConfig converts the environment values into a Config.
func (ec *EnvConfig) ObjectConfig() (*Config, error) {
	config := &Config{
		Name: ec.Name,
	}
	for _, name := range ec.RejectedKeys {
		if name = strings.TrimSpace(name); name != "" {
			config.RejectedKeys = append(config.RejectedKeys, name)
		}
	}

	if ec.AuditEnabled {
		level, err := parseAuditLevel(ec.AuditMinLevel)
		if err != nil {
			return nil, err
		}
		config.Audit = AuditConfig{
			Enabled:       true,
			OutputFile:    ec.AuditOutputFile,
			MinLevel:      level,
			BufferSize:    ec.AuditBufferSize,
			FlushInterval: ec.AuditFlushInterval,
		}
	}
	return config, nil
}

// LoopConfig converts the environment values into a LoopConfig.
func (ec *EnvConfig) LoopConfig() *LoopConfig {
	config := &LoopConfig{
		Capacity:  ec.LoopCapacity,
		BatchSize: ec.LoopBatchSize,
	}
	if ec.LoopIdleSleep > 0 {
		config.Idle = NewSleepStrategy(ec.LoopIdleSleep)
	}
	return config
}

// parseAuditLevel parses audit level string to AuditLevel type
func parseAuditLevel(levelStr string) (AuditLevel, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "", "info":
		return AuditInfo, nil
	case "warn", "warning":
		return AuditWarn, nil
	case "critical", "error":
		return AuditCritical, nil
	case "security":
		return AuditSecurity, nil
	default:
		return AuditInfo, errors.New(ErrCodeInvalidAuditConfig, "invalid audit level").
			WithContext("level", levelStr)
	}
}
