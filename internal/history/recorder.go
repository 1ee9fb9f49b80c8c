package history

import (
	"github.com/jacoelho/validatecache"
	"github.com/jacoelho/validatecache/errors"
)

// Recorder stores every outcome it observes.
type Recorder struct {
	store *Store
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Observe implements validatecache.Observer.
func (r *Recorder) Observe(o validatecache.Outcome) error {
	if r == nil || r.store == nil {
		return nil
	}
	if err := r.store.Record(FromOutcome(o)); err != nil {
		return errors.Wrap(err, errors.CodeHistory, "record run", r.store.Path())
	}
	return nil
}

// FromOutcome converts an orchestrator outcome to its stored form.
func FromOutcome(o validatecache.Outcome) Run {
	run := Run{
		ID:              o.RunID,
		Started:         o.Started,
		DocumentPath:    o.DocumentPath,
		CachePath:       o.CachePath,
		Passed:          o.ValidationPassed,
		TransportFailed: o.TransportFailed,
		TransportError:  o.TransportError,
		CacheLoadFailed: o.CacheLoadFailed,
		CacheSaveFailed: o.CacheSaveFailed,
		Warnings:        o.Diagnostics.Warnings,
		Errors:          o.Diagnostics.Errors,
		FatalErrors:     o.Diagnostics.FatalErrors,
		Grammars:        o.Grammars,
		Duration:        o.Duration,
	}
	for _, ev := range o.Events {
		run.Diagnostics = append(run.Diagnostics, Diagnostic{
			Severity: ev.Severity.String(),
			SystemID: ev.SystemID,
			Code:     ev.Code,
			Message:  ev.Message,
			Line:     ev.Line,
			Column:   ev.Column,
		})
	}
	return run
}
