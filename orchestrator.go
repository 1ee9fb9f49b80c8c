package validatecache

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/errors"
	"github.com/jacoelho/validatecache/grammar"
	"github.com/jacoelho/validatecache/internal/cachestore"
)

// Orchestrator sequences cache load, validation and cache save.
// It is not safe for concurrent use.
type Orchestrator struct {
	engine    engine.Engine
	store     CacheStore
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	observers []Observer
}

// New returns an Orchestrator driving eng.
func New(eng engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine: eng,
		store:  cachestore.New(),
		stdout: io.Discard,
		stderr: io.Discard,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}
	return o
}

// Run validates cfg.DocumentPath.
func (o *Orchestrator) Run(cfg Config) Outcome {
	return o.RunAll(cfg)[0]
}

// RunAll validates cfg.DocumentPath followed by more, sequentially, with one
// pool and one aggregator that is reset between documents. The cache is
// loaded once before the first document and saved once after the last.
func (o *Orchestrator) RunAll(cfg Config, more ...string) []Outcome {
	docs := append([]string{cfg.DocumentPath}, more...)
	log := o.logger.With("cache", cfg.CachePath)

	pool, loadFailed := o.loadCache(cfg, log)

	features := engine.DefaultFeatures()
	features.CacheGrammarFromParse = cfg.HasCache()

	agg := diag.NewAggregator()
	sink := diag.Multi(agg, diag.NewWriter(o.stderr))
	parser, buildErr := o.buildParser(engine.Config{Pool: pool, Handler: sink, Features: features})

	outcomes := make([]Outcome, 0, len(docs))
	for _, doc := range docs {
		agg.Reset()
		out := Outcome{
			RunID:           o.newID(),
			DocumentPath:    doc,
			CachePath:       cfg.CachePath,
			Started:         o.now(),
			CacheLoadFailed: loadFailed,
		}

		err := buildErr
		if err == nil {
			err = parser.Parse(doc)
		}
		if err != nil {
			out.TransportFailed = true
			out.TransportError = errors.Message(err)
			o.writef(o.stderr, "\nError during parse of %s\n  Message: %s\n", doc, out.TransportError)
			log.Debug("parse failed", "document", doc, "error", err)
		}

		out.ValidationPassed = !out.TransportFailed && !agg.HadError()
		out.Diagnostics = agg.Counts()
		out.Events = agg.Events()
		if out.ValidationPassed {
			o.writef(o.stdout, "%s OK\n", doc)
		}
		out.Duration = o.now().Sub(out.Started)
		outcomes = append(outcomes, out)

		log.Debug("document validated",
			"document", doc,
			"passed", out.ValidationPassed,
			"warnings", out.Diagnostics.Warnings,
			"errors", out.Diagnostics.Errors,
			"fatal_errors", out.Diagnostics.FatalErrors,
		)
	}

	if parser != nil {
		if err := parser.Close(); err != nil {
			log.Warn("close parser", "error", err)
		}
	}

	saveFailed := o.saveCache(cfg, pool, log)

	for i := range outcomes {
		outcomes[i].CacheSaveFailed = saveFailed
		outcomes[i].Grammars = pool.Len()
		for _, ob := range o.observers {
			if err := ob.Observe(outcomes[i]); err != nil {
				log.Warn("record outcome", "run_id", outcomes[i].RunID, "error", err)
			}
		}
	}
	return outcomes
}

func (o *Orchestrator) loadCache(cfg Config, log *slog.Logger) (*grammar.Pool, bool) {
	if !cfg.HasCache() {
		log.Debug("no grammar cache configured")
		return nil, false
	}

	pool, err := o.store.Load(cfg.CachePath)
	if pool == nil {
		pool = grammar.NewPool()
	}
	if err != nil {
		o.writef(o.stderr, "Error reading cached grammar (nonfatal): %s\n", errors.Message(err))
		log.Debug("grammar cache unusable", "error", err)
		return pool, true
	}
	log.Debug("grammar cache loaded", "grammars", pool.Len())
	return pool, false
}

func (o *Orchestrator) buildParser(cfg engine.Config) (engine.Parser, error) {
	if o.engine == nil {
		return nil, errors.New(errors.CodeTransport, "build parser", "", "no validation engine configured")
	}
	p, err := o.engine.NewParser(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransport, "build parser", "")
	}
	if p == nil {
		return nil, errors.New(errors.CodeTransport, "build parser", "", "engine returned no parser")
	}
	return p, nil
}

func (o *Orchestrator) saveCache(cfg Config, pool *grammar.Pool, log *slog.Logger) bool {
	if !cfg.ShouldSave() {
		return false
	}
	if err := o.store.Save(cfg.CachePath, pool); err != nil {
		o.writef(o.stderr, "Error saving cached grammar (nonfatal): %s\n", errors.Message(err))
		log.Debug("grammar cache not saved", "error", err)
		return true
	}
	log.Debug("grammar cache saved", "grammars", pool.Len())
	return false
}

func (o *Orchestrator) writef(w io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		o.logger.Warn("write output", "error", err)
	}
}
