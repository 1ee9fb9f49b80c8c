// Package history keeps an optional sqlite record of validation runs.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Diagnostic is the stored form of one diagnostic event.
type Diagnostic struct {
	Severity string `json:"severity"`
	SystemID string `json:"system_id"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Run is one recorded validation.
type Run struct {
	Started         time.Time
	ID              string
	DocumentPath    string
	CachePath       string
	TransportError  string
	Diagnostics     []Diagnostic
	Warnings        int
	Errors          int
	FatalErrors     int
	Grammars        int
	Duration        time.Duration
	Passed          bool
	TransportFailed bool
	CacheLoadFailed bool
	CacheSaveFailed bool
}

// Store is a SQLite database of validation runs. It is safe for concurrent
// use; writes are serialised on one connection.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the history database at path and migrates it.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}
	if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}
	return &Store{path: cleanPath, db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path passed to Open, trimmed.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Record inserts run. Recording the same run id twice replaces the row.
func (s *Store) Record(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}
	diagnostics := run.Diagnostics
	if diagnostics == nil {
		diagnostics = []Diagnostic{}
	}
	encoded, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	const query = `
INSERT OR REPLACE INTO runs (
  run_id, started_utc, document_path, cache_path, passed, transport_failed, transport_error,
  cache_load_failed, cache_save_failed, warning_count, error_count, fatal_error_count,
  duration_ms, grammar_count, diagnostics_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	return s.withRetry("record run", func() error {
		_, err := s.db.Exec(
			query,
			run.ID,
			run.Started.UTC().Format(timeLayout),
			run.DocumentPath,
			run.CachePath,
			run.Passed,
			run.TransportFailed,
			run.TransportError,
			run.CacheLoadFailed,
			run.CacheSaveFailed,
			run.Warnings,
			run.Errors,
			run.FatalErrors,
			run.Duration.Milliseconds(),
			run.Grammars,
			string(encoded),
		)
		return err
	})
}

// Recent returns up to limit runs, newest first. A document path narrows
// the result to that document.
func (s *Store) Recent(limit int, documentPath string) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT
  run_id, started_utc, document_path, cache_path, passed, transport_failed, transport_error,
  cache_load_failed, cache_save_failed, warning_count, error_count, fatal_error_count,
  duration_ms, grammar_count, diagnostics_json
FROM runs
`
	args := make([]any, 0, 2)
	if documentPath != "" {
		query += " WHERE document_path = ?"
		args = append(args, documentPath)
	}
	query += " ORDER BY started_utc DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run        Run
			startedRaw string
			durationMS int64
			diagRaw    string
		)
		if err := rows.Scan(
			&run.ID,
			&startedRaw,
			&run.DocumentPath,
			&run.CachePath,
			&run.Passed,
			&run.TransportFailed,
			&run.TransportError,
			&run.CacheLoadFailed,
			&run.CacheSaveFailed,
			&run.Warnings,
			&run.Errors,
			&run.FatalErrors,
			&durationMS,
			&run.Grammars,
			&diagRaw,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		started, err := time.Parse(timeLayout, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run start %q: %w", startedRaw, err)
		}
		run.Started = started
		run.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(diagRaw), &run.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics of run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
