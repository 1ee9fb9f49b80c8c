// Package libxml implements engine.Engine on top of libxml2.
//
// Grammars are kept in the pool as schema source documents. A parser compiles
// them on demand, always from the captured bytes, so a grammar loaded from
// the cache validates exactly like one discovered from a schema location.
package libxml

import (
	"log/slog"
	"strconv"
	"sync"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/grammar"
	"github.com/jacoelho/validatecache/internal/schemaloc"
)

var (
	initMu   sync.Mutex
	initOnce = new(sync.Once)
	initErr  error
)

// Init initialises libxml2. Calls after the first are no-ops until Cleanup.
func Init() error {
	initMu.Lock()
	once := initOnce
	initMu.Unlock()
	once.Do(func() {
		initErr = xsdvalidate.Init()
	})
	return initErr
}

// Cleanup releases libxml2 global state. Parsers created before Cleanup
// must not be used afterwards; Init may be called again.
func Cleanup() {
	initMu.Lock()
	defer initMu.Unlock()
	xsdvalidate.Cleanup()
	initOnce = new(sync.Once)
	initErr = nil
}

// Engine builds libxml2 backed parsers.
type Engine struct {
	resolver schemaloc.Resolver
	logger   *slog.Logger
	parse    xsdvalidate.Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the resolver used for schema locations.
func WithResolver(r schemaloc.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithLogger sets the logger for schema lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHugeDocuments lifts the libxml2 parser safety limits.
func WithHugeDocuments() Option {
	return func(e *Engine) {
		e.parse |= xsdvalidate.ParsXmlHuge
	}
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		resolver: schemaloc.DefaultResolver{},
		logger:   slog.New(slog.DiscardHandler),
		parse:    xsdvalidate.ParsErrDefault,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// NewParser implements engine.Engine. Without a pool in cfg, grammars found
// during parsing live only as long as the parser.
func (e *Engine) NewParser(cfg engine.Config) (engine.Parser, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	pool := cfg.Pool
	if pool == nil {
		pool = grammar.NewPool()
	}
	handler := cfg.Handler
	if handler == nil {
		handler = diag.HandlerFunc(func(diag.Event) {})
	}
	return &parser{
		engine:   e,
		pool:     pool,
		handler:  handler,
		features: cfg.Features,
		compiled: make(map[string]*xsdvalidate.XsdHandler),
	}, nil
}

func severityOf(level int) diag.Severity {
	switch level {
	case 1:
		return diag.Warning
	case 3:
		return diag.FatalError
	default:
		return diag.Error
	}
}

func eventsOf(systemID string, ve xsdvalidate.ValidationError) []diag.Event {
	events := make([]diag.Event, 0, len(ve.Errors))
	for _, se := range ve.Errors {
		events = append(events, diag.Event{
			SystemID: systemID,
			Code:     strconv.Itoa(se.Code),
			Message:  se.Message,
			Line:     se.Line,
			Severity: severityOf(se.Level),
		})
	}
	return events
}
