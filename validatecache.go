// Package validatecache validates XML documents against the schemas they
// reference and keeps the compiled grammars in a cache file between runs.
//
// A run loads the cache (when a cache path is given), drives an
// engine.Engine over the document with every diagnostic routed through a
// diag.Aggregator, and writes the cache back when saving was requested. Cache
// failures are reported as non-fatal and never change the verdict.
package validatecache

import (
	"time"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/grammar"
)

// Config is the resolved input of one run.
type Config struct {
	DocumentPath string
	// CachePath is optional; without it no cache is read or written and
	// grammars are not cached from parse.
	CachePath string
	// Save writes the cache after validation. It has no effect without
	// CachePath.
	Save bool
}

// HasCache reports whether a cache path was supplied.
func (c Config) HasCache() bool {
	return c.CachePath != ""
}

// ShouldSave reports whether the cache is written after validation.
func (c Config) ShouldSave() bool {
	return c.Save && c.HasCache()
}

// Outcome is the result of validating one document.
type Outcome struct {
	Started          time.Time
	RunID            string
	DocumentPath     string
	CachePath        string
	TransportError   string
	Events           []diag.Event
	Diagnostics      diag.Counts
	Duration         time.Duration
	Grammars         int
	ValidationPassed bool
	TransportFailed  bool
	CacheLoadFailed  bool
	CacheSaveFailed  bool
}

// CacheStore persists grammar pools. Load must always return a usable pool,
// even alongside an error.
type CacheStore interface {
	Load(path string) (*grammar.Pool, error)
	Save(path string, pool *grammar.Pool) error
}

// Observer receives every outcome once the run is complete. Observer errors
// are logged and never affect the verdict.
type Observer interface {
	Observe(Outcome) error
}
