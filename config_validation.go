// config_validation.go: Validation for object, loop and audit configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Validation errors
var (
	ErrInvalidBufferSize    = errors.New(ErrCodeInvalidBufferSize, "audit buffer size must not be negative")
	ErrInvalidFlushInterval = errors.New(ErrCodeInvalidFlushInterval, "audit flush interval must not be negative")
	ErrInvalidLoopCapacity  = errors.New(ErrCodeInvalidLoopCapacity, "loop capacity must be a power of 2")
	ErrInvalidBatchSize     = errors.New(ErrCodeInvalidBatchSize, "loop batch size must be positive")
	ErrEmptyRejectedKey     = errors.New(ErrCodeInvalidConfig, "rejected key names cannot be empty")
)

// ValidationResult contains the result of configuration validation with detailed feedback.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// String returns a human-readable representation of validation results
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

// firstError maps the first recorded error message back to its sentinel.
func firstError(result ValidationResult, known ...error) error {
	if result.Valid || len(result.Errors) == 0 {
		return nil
	}
	msg := result.Errors[0]
	for _, err := range known {
		if err.Error() == msg {
			return err
		}
	}
	if prefix := "[" + ErrCodeInvalidOutputFile + "]: "; strings.HasPrefix(msg, prefix) {
		return errors.New(ErrCodeInvalidOutputFile, strings.TrimPrefix(msg, prefix))
	}
	return errors.New(ErrCodeInvalidConfig, msg)
}

// Validate returns the first error of ValidateDetailed, or nil.
func (c *Config) Validate() error {
	return firstError(c.ValidateDetailed(),
		ErrEmptyRejectedKey, ErrInvalidBufferSize, ErrInvalidFlushInterval)
}

// ValidateDetailed performs comprehensive validation and returns detailed results
// including both errors and warnings
func (c *Config) ValidateDetailed() ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	for _, name := range c.RejectedKeys {
		if strings.TrimSpace(name) == "" {
			result.Errors = append(result.Errors, ErrEmptyRejectedKey.Error())
			break
		}
	}

	for name := range c.InitialValues {
		if c.Lineage == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("initial value for %q is ignored without a lineage", name))
			break
		}
	}

	if c.AuditLogger != nil && c.Audit.Enabled {
		result.Warnings = append(result.Warnings,
			"both AuditLogger and Audit are set, the shared AuditLogger is used")
	}

	validateAuditConfig(c.Audit, &result)

	result.Valid = len(result.Errors) == 0
	return result
}

// validateAuditConfig validates audit configuration if enabled
func validateAuditConfig(audit AuditConfig, result *ValidationResult) {
	if !audit.Enabled {
		return
	}

	if audit.BufferSize < 0 {
		result.Errors = append(result.Errors, ErrInvalidBufferSize.Error())
	} else if audit.BufferSize > 10000 {
		result.Warnings = append(result.Warnings, "Large audit buffer size may consume significant memory")
	}

	if audit.FlushInterval < 0 {
		result.Errors = append(result.Errors, ErrInvalidFlushInterval.Error())
	} else if audit.FlushInterval > 0 && audit.FlushInterval < 100*time.Millisecond {
		result.Warnings = append(result.Warnings, "Frequent audit flushing may impact I/O performance")
	}

	// An empty output file selects the unified SQLite database.
	if audit.OutputFile != "" {
		if err := validateOutputFile(audit.OutputFile); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
}

// validateOutputFile checks if the audit output file path is valid and its
// directory exists
func validateOutputFile(outputFile string) error {
	cleanPath := filepath.Clean(outputFile)
	if cleanPath == "." || cleanPath == "/" {
		return errors.New(ErrCodeInvalidOutputFile,
			fmt.Sprintf("path '%s' is not a valid file path", outputFile))
	}

	dir := filepath.Dir(cleanPath)
	if info, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.New(ErrCodeInvalidOutputFile,
				fmt.Sprintf("directory '%s' does not exist", dir))
		}
		return errors.Wrap(err, ErrCodeInvalidOutputFile,
			fmt.Sprintf("cannot access directory '%s'", dir))
	} else if !info.IsDir() {
		return errors.New(ErrCodeInvalidOutputFile,
			fmt.Sprintf("'%s' is not a directory", dir))
	}
	return nil
}

// Validate returns the first error of ValidateDetailed, or nil.
func (c *LoopConfig) Validate() error {
	return firstError(c.ValidateDetailed(), ErrInvalidLoopCapacity, ErrInvalidBatchSize)
}

// ValidateDetailed checks an explicit loop configuration. Zero values are
// valid because WithDefaults fills them.
func (c *LoopConfig) ValidateDetailed() ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	if c.Capacity < 0 || (c.Capacity > 0 && c.Capacity&(c.Capacity-1) != 0) {
		result.Errors = append(result.Errors, ErrInvalidLoopCapacity.Error())
	} else if c.Capacity > 1<<16 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Loop capacity %d preallocates a large task ring", c.Capacity))
	}

	if c.BatchSize < 0 {
		result.Errors = append(result.Errors, ErrInvalidBatchSize.Error())
	} else if c.Capacity > 0 && c.BatchSize > c.Capacity {
		result.Warnings = append(result.Warnings, "Loop batch size exceeds capacity and is effectively capped")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// GetValidationErrorCode extracts the error code from a statekeys error
func GetValidationErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if coder, ok := err.(errors.ErrorCoder); ok {
		return string(coder.ErrorCode())
	}

	errStr := err.Error()

	// Handle go-errors format: [CODE]: Message
	if len(errStr) > 3 && errStr[0] == '[' {
		if idx := strings.IndexByte(errStr, ']'); idx > 0 {
			return errStr[1:idx]
		}
	}
	return ""
}
