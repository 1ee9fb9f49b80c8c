package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/validatecache"
	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(Run{
		ID:           "run-1",
		Started:      base,
		DocumentPath: "a.xml",
		CachePath:    "grammar.cache",
		Passed:       true,
		Grammars:     2,
		Duration:     1500 * time.Millisecond,
	}))
	require.NoError(t, s.Record(Run{
		ID:           "run-2",
		Started:      base.Add(500 * time.Millisecond),
		DocumentPath: "b.xml",
		Errors:       1,
		Warnings:     1,
		Diagnostics: []Diagnostic{
			{Severity: "Error", SystemID: "b.xml", Line: 3, Column: 7, Message: "element not expected", Code: "1871"},
			{Severity: "Warning", SystemID: "b.xml", Message: "schema not found"},
		},
		CacheLoadFailed: true,
	}))
	require.NoError(t, s.Record(Run{
		ID:              "run-3",
		Started:         base.Add(time.Second),
		DocumentPath:    "a.xml",
		TransportFailed: true,
		TransportError:  "no such file",
		CacheSaveFailed: true,
	}))

	runs, err := s.Recent(10, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-3", "run-2", "run-1"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	first := runs[2]
	assert.True(t, first.Started.Equal(base))
	assert.True(t, first.Passed)
	assert.Equal(t, "grammar.cache", first.CachePath)
	assert.Equal(t, 2, first.Grammars)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)
	assert.Empty(t, first.Diagnostics)

	second := runs[1]
	assert.False(t, second.Passed)
	assert.True(t, second.CacheLoadFailed)
	assert.Equal(t, 1, second.Errors)
	require.Len(t, second.Diagnostics, 2)
	assert.Equal(t, Diagnostic{Severity: "Error", SystemID: "b.xml", Line: 3, Column: 7, Message: "element not expected", Code: "1871"}, second.Diagnostics[0])

	third := runs[0]
	assert.True(t, third.TransportFailed)
	assert.True(t, third.CacheSaveFailed)
	assert.Equal(t, "no such file", third.TransportError)

	onlyA, err := s.Recent(10, "a.xml")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	limited, err := s.Recent(1, "")
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-3", limited[0].ID)
}

func TestRecordRejectsEmptyID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Record(Run{DocumentPath: "a.xml"}))
}

func TestRecordSameIDReplaces(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Record(Run{ID: "r", DocumentPath: "a.xml"}))
	require.NoError(t, s.Record(Run{ID: "r", DocumentPath: "a.xml", Passed: true}))

	runs, err := s.Recent(0, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Passed)
}

func TestOpenReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Record(Run{ID: "kept", DocumentPath: "a.xml"}))
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Recent(5, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
	assert.Equal(t, path, s.Path())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("  ", 0)
	assert.Error(t, err)

	_, err = Open(t.TempDir(), 0)
	assert.ErrorContains(t, err, "is a directory")
}

func TestEnsureSchemaRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, 0)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open(driverName, "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	require.NoError(t, EnsureSchema(db))
	require.NoError(t, EnsureSchema(db))

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestRecorderObserve(t *testing.T) {
	s := openStore(t)
	rec := NewRecorder(s)
	started := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, rec.Observe(validatecache.Outcome{
		RunID:        "0b6f",
		Started:      started,
		DocumentPath: "order.xml",
		CachePath:    "grammar.cache",
		Events: []diag.Event{
			{Severity: diag.FatalError, SystemID: "order.xml", Line: 9, Column: 2, Message: "unclosed tag"},
		},
		Diagnostics: diag.Counts{FatalErrors: 1},
		Grammars:    1,
		Duration:    42 * time.Millisecond,
	}))

	runs, err := s.Recent(1, "order.xml")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "0b6f", runs[0].ID)
	assert.Equal(t, 1, runs[0].FatalErrors)
	assert.Equal(t, 42*time.Millisecond, runs[0].Duration)
	require.Len(t, runs[0].Diagnostics, 1)
	assert.Equal(t, "Fatal error", runs[0].Diagnostics[0].Severity)
}

func TestRecorderClassifiesFailures(t *testing.T) {
	s := openStore(t)
	rec := NewRecorder(s)
	require.NoError(t, s.Close())

	err := rec.Observe(validatecache.Outcome{RunID: "x", DocumentPath: "a.xml"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeHistory))

	var nilRecorder *Recorder
	assert.NoError(t, nilRecorder.Observe(validatecache.Outcome{}))
}

func TestHistoryFileIsCreated(t *testing.T) {
	s := openStore(t)
	_, err := os.Stat(s.Path())
	assert.NoError(t, err)
}
