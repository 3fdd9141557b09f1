// audit_backend.go: Storage backends for the statekeys audit trail
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend abstracts where audit events are stored.
type auditBackend interface {
	// Write persists a batch of events atomically where the backend allows it.
	Write(events []AuditEvent) error

	// Flush forces buffered data to durable storage.
	Flush() error

	// Close releases every resource held by the backend.
	Close() error

	// Maintenance applies retention and storage optimization.
	Maintenance() error

	// GetStats reports what the backend holds.
	GetStats() (*AuditDatabaseStats, error)
}

// AuditDatabaseStats describes the content of an audit backend.
type AuditDatabaseStats struct {
	TotalEvents    int64            `json:"total_events"`
	EventsByLevel  map[string]int64 `json:"events_by_level"`
	EventsByObject map[string]int64 `json:"events_by_object"`
	OldestEvent    *time.Time       `json:"oldest_event"`
	NewestEvent    *time.Time       `json:"newest_event"`
	DatabaseSize   int64            `json:"database_size_bytes"`
	SchemaVersion  int              `json:"schema_version"`
}

func newAuditStats() *AuditDatabaseStats {
	return &AuditDatabaseStats{
		EventsByLevel:  make(map[string]int64),
		EventsByObject: make(map[string]int64),
	}
}

// createAuditBackend picks JSONL for ".jsonl" output files and SQLite
// otherwise, falling back to JSONL when SQLite cannot be opened.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// getUnifiedAuditPath returns the shared database used when no output file
// is configured.
func getUnifiedAuditPath() string {
	return filepath.Join(os.TempDir(), "statekeys", "audit.db")
}

const auditSchemaVersion = 2

// auditRetentionDays is how long the SQLite backend keeps events.
const auditRetentionDays = 90

type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := getUnifiedAuditPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{db: db, dbPath: dbPath}
	if err := backend.ensureSchemaVersion(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize audit database schema: %w", err)
	}

	stmt, err := db.Prepare(`
	INSERT INTO state_events (
		timestamp, level, event, component, object, key_name,
		old_value, new_value, process_id, process_name, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to prepare audit insert statement: %w", err)
	}
	backend.insertStmt = stmt

	// Maintenance failures must not block startup
	_ = backend.Maintenance()
	return backend, nil
}

// ensureSchemaVersion creates or migrates the schema to auditSchemaVersion.
func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if version >= auditSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	for v := version; v < auditSchemaVersion; v++ {
		if err := migrateAuditSchema(tx, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schema migration from v%d failed: %w", v, err)
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)", auditSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

// migrateAuditSchema upgrades the schema from version from to from+1.
func migrateAuditSchema(tx *sql.Tx, from int) error {
	var statements []string
	switch from {
	case 0:
		statements = []string{
			`CREATE TABLE IF NOT EXISTS state_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TEXT NOT NULL,
				level TEXT NOT NULL,
				event TEXT NOT NULL,
				component TEXT NOT NULL,
				object TEXT,
				key_name TEXT,
				old_value TEXT,
				new_value TEXT,
				process_id INTEGER NOT NULL,
				process_name TEXT NOT NULL,
				context TEXT,
				checksum TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);`,
			"CREATE INDEX IF NOT EXISTS idx_state_timestamp ON state_events(timestamp)",
			"CREATE INDEX IF NOT EXISTS idx_state_level ON state_events(level)",
			"CREATE INDEX IF NOT EXISTS idx_state_object ON state_events(object)",
		}
	case 1:
		statements = []string{
			"CREATE INDEX IF NOT EXISTS idx_state_object_key ON state_events(object, key_name, timestamp)",
			"CREATE INDEX IF NOT EXISTS idx_state_level_time ON state_events(level, created_at)",
		}
	default:
		return fmt.Errorf("unknown migration path from version %d", from)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt := tx.Stmt(s.insertStmt)
	defer func() { _ = stmt.Close() }()

	for _, event := range events {
		if err = insertAuditEvent(stmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func insertAuditEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValue, err := marshalAuditValue(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to serialize old_value: %w", err)
	}
	newValue, err := marshalAuditValue(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to serialize new_value: %w", err)
	}
	var context string
	if event.Context != nil {
		context, err = marshalAuditValue(event.Context)
		if err != nil {
			return fmt.Errorf("failed to serialize context: %w", err)
		}
	}

	_, err = stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		event.Object,
		event.Key,
		oldValue,
		newValue,
		event.ProcessID,
		event.ProcessName,
		context,
		event.Checksum,
	)
	return err
}

func marshalAuditValue(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Maintenance() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	if _, err := s.db.Exec(
		"DELETE FROM state_events WHERE created_at < datetime('now', '-' || ? || ' days')",
		auditRetentionDays,
	); err != nil {
		return fmt.Errorf("failed to cleanup old audit events: %w", err)
	}

	// Optimization failures are non-fatal
	_, _ = s.db.Exec("PRAGMA optimize")
	return nil
}

func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("SQLite audit backend is closed")
	}

	stats := newAuditStats()
	if err := s.db.QueryRow("SELECT COUNT(*) FROM state_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total events count: %w", err)
	}
	if err := s.groupCount("SELECT level, COUNT(*) FROM state_events GROUP BY level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.groupCount("SELECT COALESCE(object, ''), COUNT(*) FROM state_events GROUP BY object", stats.EventsByObject); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM state_events").Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}

	if err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

func (s *sqliteAuditBackend) groupCount(query string, into map[string]int64) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to run stats query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return fmt.Errorf("failed to scan stats row: %w", err)
		}
		into[name] = count
	}
	return rows.Err()
}

func (s *sqliteAuditBackend) Close() error {
	flushErr := s.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if flushErr != nil {
		errs = append(errs, flushErr)
	}
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(config AuditConfig) (*jsonlAuditBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}

	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{file: file, path: config.OutputFile}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

func (j *jsonlAuditBackend) Maintenance() error {
	return nil
}

// GetStats scans the log file. Malformed lines are skipped.
func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := newAuditStats()
	stats.SchemaVersion = 1

	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if info, err := file.Stat(); err == nil {
		stats.DatabaseSize = info.Size()
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		stats.TotalEvents++
		stats.EventsByLevel[event.Level.String()]++
		stats.EventsByObject[event.Object]++
		ts := event.Timestamp
		if stats.OldestEvent == nil || ts.Before(*stats.OldestEvent) {
			stats.OldestEvent = &ts
		}
		if stats.NewestEvent == nil || ts.After(*stats.NewestEvent) {
			stats.NewestEvent = &ts
		}
	}
	return stats, scanner.Err()
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
