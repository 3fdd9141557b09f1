// audit.go: Audit trail for state key registrations, rejections and changes
//
// Records who changed which object and when, with tamper detection.
//
// Features:
// - Buffered writes with a background flusher
// - SHA-256 checksum per event
// - Cached timestamps from go-timecache
// - SQLite or JSONL storage
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// auditComponent is the component name stamped on every event.
const auditComponent = "statekeys"

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	Object      string                 `json:"object,omitempty"`
	Key         string                 `json:"key,omitempty"`
	OldValue    interface{}            `json:"old_value,omitempty"`
	NewValue    interface{}            `json:"new_value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled bool `json:"enabled"`

	// OutputFile selects the backend by extension: ".jsonl" for JSON lines,
	// ".db" for a dedicated SQLite file. Empty uses the unified SQLite database.
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns an enabled configuration writing to the unified
// SQLite database.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger buffers audit events and writes them to a backend.
// A nil or disabled logger accepts every call and records nothing.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger. A disabled configuration yields a
// logger without backend or background goroutine.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	logger := &AuditLogger{
		config:      config,
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}
	if !config.Enabled {
		return logger, nil
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit backend: %w", err)
	}
	logger.backend = backend
	logger.buffer = make([]AuditEvent, 0, config.BufferSize)

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Enabled reports whether events are recorded.
func (al *AuditLogger) Enabled() bool {
	return al != nil && al.backend != nil && al.config.Enabled
}

// Log records an audit event
func (al *AuditLogger) Log(level AuditLevel, event, object, key string, oldVal, newVal interface{}, context map[string]interface{}) {
	if !al.Enabled() || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   auditComponent,
		Object:      object,
		Key:         key,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = al.generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // Ignore flush errors during buffering to maintain performance
	}
	al.bufferMu.Unlock()
}

// LogKeyEvent logs registry events such as key_registered and key_removed
func (al *AuditLogger) LogKeyEvent(event, object, key string) {
	al.Log(AuditInfo, event, object, key, nil, nil, nil)
}

// LogConfigChange logs a SetAll delta
func (al *AuditLogger) LogConfigChange(object string, oldConfig, newConfig map[string]interface{}) {
	al.Log(AuditCritical, "config_change", object, "", oldConfig, newConfig, nil)
}

// LogBatch logs a published batch
func (al *AuditLogger) LogBatch(object string, batch Batch) {
	if !al.Enabled() {
		return
	}
	al.Log(AuditInfo, "batch_flushed", object, "", nil, nil, map[string]interface{}{
		"keys": batch.Keys,
	})
}

// LogSecurityEvent logs security-related events
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]interface{}) {
	if !al.Enabled() {
		return
	}
	ctx := make(map[string]interface{}, len(context)+1)
	for k, v := range context {
		ctx[k] = v
	}
	ctx["details"] = details
	object, _ := ctx["object"].(string)
	key, _ := ctx["key"].(string)
	al.Log(AuditSecurity, event, object, key, nil, nil, ctx)
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if !al.Enabled() {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Stats flushes pending events and returns storage statistics.
func (al *AuditLogger) Stats() (*AuditDatabaseStats, error) {
	if !al.Enabled() {
		return nil, fmt.Errorf("audit logger is disabled")
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.GetStats()
}

// Close gracefully shuts down the audit logger. It is safe to call twice.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var closeErr error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if al.backend == nil {
			return
		}

		// Final flush to ensure all events are persisted
		if err := al.Flush(); err != nil {
			closeErr = fmt.Errorf("failed to flush audit logger during close: %w", err)
			return
		}
		if err := al.backend.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close audit backend: %w", err)
		}
	})
	return closeErr
}

// flushLoop runs the background flush process
func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // Ignore flush errors in background process to maintain performance
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes buffer to backend storage (caller must hold bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func (al *AuditLogger) generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.Object, event.Key,
		event.OldValue, event.NewValue)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func getProcessName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "statekeys"
}
