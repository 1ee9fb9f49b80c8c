package validatecache

import (
	"io"
	"log/slog"
	"time"
)

// Option configures an Orchestrator.
type Option interface{ apply(*Orchestrator) }

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) {
	if o == nil {
		return
	}
	f(o)
}

// WithCacheStore replaces the cache file store.
func WithCacheStore(s CacheStore) Option {
	return optionFunc(func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	})
}

// WithOutput sets the streams for the OK marker and for diagnostics.
func WithOutput(stdout, stderr io.Writer) Option {
	return optionFunc(func(o *Orchestrator) {
		if stdout != nil {
			o.stdout = stdout
		}
		if stderr != nil {
			o.stderr = stderr
		}
	})
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithObservers appends outcome observers.
func WithObservers(obs ...Observer) Option {
	return optionFunc(func(o *Orchestrator) {
		for _, ob := range obs {
			if ob != nil {
				o.observers = append(o.observers, ob)
			}
		}
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	})
}

// WithRunIDs overrides the run id generator.
func WithRunIDs(next func() string) Option {
	return optionFunc(func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	})
}
