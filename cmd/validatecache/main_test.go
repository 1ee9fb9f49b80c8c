package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/internal/config"
	"github.com/jacoelho/validatecache/internal/history"
)

type scriptedEngine struct {
	events map[string][]diag.Event
	built  int
}

func (e *scriptedEngine) NewParser(cfg engine.Config) (engine.Parser, error) {
	e.built++
	return &scriptedParser{engine: e, handler: cfg.Handler}, nil
}

type scriptedParser struct {
	engine  *scriptedEngine
	handler diag.Handler
}

func (p *scriptedParser) Parse(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	for _, ev := range p.engine.events[path] {
		p.handler.Handle(ev)
	}
	return nil
}

func (p *scriptedParser) Close() error { return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvConfigPath,
		"VALIDATECACHE_LOG_LEVEL",
		"VALIDATECACHE_LOG_FORMAT",
		"VALIDATECACHE_CACHE_FILE_MODE",
		"VALIDATECACHE_CACHE_HUGE_DOCUMENTS",
		"VALIDATECACHE_SCHEMA_HTTP_TIMEOUT",
		"VALIDATECACHE_HISTORY_PATH",
		"VALIDATECACHE_HISTORY_ENABLED",
		"VALIDATECACHE_HISTORY_BUSY_TIMEOUT",
		"VALIDATECACHE_METRICS_TEXTFILE",
	} {
		t.Setenv(key, "")
	}
}

func writeDoc(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte("<doc/>"), 0o644))
	return path
}

func runScripted(t *testing.T, eng *scriptedEngine, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runWithEngine(args, &stdout, &stderr, func(*config.Config, *slog.Logger) engine.Engine { return eng })
	return code, stdout.String(), stderr.String()
}

func TestUsageErrors(t *testing.T) {
	clearEnv(t)
	tests := [][]string{
		nil,
		{"only.xml"},
		{"a", "b", "c"},
		{"-save"},
		{"a.cache", "-save", "b.xml"},
	}
	for _, args := range tests {
		eng := &scriptedEngine{}
		code, stdout, stderr := runScripted(t, eng, args...)
		assert.Equal(t, exitUsage, code, "args %q", args)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "Usage: validatecache")
		assert.Zero(t, eng.built, "engine must not be built for %q", args)
	}
}

func TestUsageErrorPerformsNoIO(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "missing.toml"))
	var stderr bytes.Buffer
	code := runWithArgs(nil, &bytes.Buffer{}, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.NotContains(t, stderr.String(), "missing.toml")
}

func TestValidDocumentExitsZero(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir)
	cache := filepath.Join(dir, "grammar.cache")

	code, stdout, _ := runScripted(t, &scriptedEngine{}, cache, doc)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, doc+" OK\n", stdout)
	_, err := os.Stat(cache)
	assert.NoError(t, err, "cache is written after a run with a cache path")
}

func TestInvalidDocumentExitsOne(t *testing.T) {
	clearEnv(t)
	doc := writeDoc(t, t.TempDir())
	eng := &scriptedEngine{events: map[string][]diag.Event{
		doc: {{Severity: diag.Error, SystemID: doc, Line: 4, Column: 9, Message: "invalid value"}},
	}}

	code, stdout, stderr := runScripted(t, eng, "-save", doc)
	assert.Equal(t, exitFail, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "line 4, char 9")
	assert.Contains(t, stderr, "invalid value")
}

func TestMissingDocumentExitsOne(t *testing.T) {
	clearEnv(t)
	code, _, stderr := runScripted(t, &scriptedEngine{}, "-save", filepath.Join(t.TempDir(), "absent.xml"))
	assert.Equal(t, exitFail, code)
	assert.Contains(t, stderr, "Error during parse of")
}

func TestInvalidConfigExitsOne(t *testing.T) {
	clearEnv(t)
	t.Setenv("VALIDATECACHE_LOG_LEVEL", "loud")
	doc := writeDoc(t, t.TempDir())

	eng := &scriptedEngine{}
	code, _, stderr := runScripted(t, eng, "-save", doc)
	assert.Equal(t, exitFail, code)
	assert.Contains(t, stderr, "error:")
	assert.Zero(t, eng.built)
}

func TestMetricsTextfileIsWritten(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir)
	prom := filepath.Join(dir, "validatecache.prom")
	t.Setenv("VALIDATECACHE_METRICS_TEXTFILE", prom)

	code, _, _ := runScripted(t, &scriptedEngine{}, "-save", doc)
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `validatecache_runs_total{result="pass"} 1`)
}

func TestHistoryIsRecorded(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir)
	db := filepath.Join(dir, "history.db")
	t.Setenv("VALIDATECACHE_HISTORY_PATH", db)

	code, _, _ := runScripted(t, &scriptedEngine{}, "-save", doc)
	require.Equal(t, exitOK, code)

	store, err := history.Open(db, 0)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(5, doc)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Passed)
	assert.NotEmpty(t, runs[0].ID)
}

func TestHistoryFailureIsNotFatal(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	doc := writeDoc(t, dir)
	t.Setenv("VALIDATECACHE_HISTORY_PATH", dir)

	code, stdout, stderr := runScripted(t, &scriptedEngine{}, "-save", doc)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, doc+" OK\n", stdout)
	assert.Contains(t, stderr, "history disabled")
}
