package validatecache

import (
	"errors"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/grammar"
)

// fakeEngine emits scripted diagnostics per document and caches scripted
// grammars from parse. A document validates only when its required grammar
// is in the pool at parse time, which lets tests observe cache effects.
type fakeEngine struct {
	events    map[string][]diag.Event
	failures  map[string]error
	discovers map[string]*grammar.Grammar
	requires  map[string]grammar.Key
	buildErr  error
	configs   []engine.Config
	parsed    []string
	closed    int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events:    make(map[string][]diag.Event),
		failures:  make(map[string]error),
		discovers: make(map[string]*grammar.Grammar),
		requires:  make(map[string]grammar.Key),
	}
}

func (f *fakeEngine) NewParser(cfg engine.Config) (engine.Parser, error) {
	f.configs = append(f.configs, cfg)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	pool := cfg.Pool
	if pool == nil {
		pool = grammar.NewPool()
	}
	return &fakeParser{engine: f, cfg: cfg, pool: pool}, nil
}

type fakeParser struct {
	engine *fakeEngine
	pool   *grammar.Pool
	cfg    engine.Config
}

func (p *fakeParser) Parse(path string) error {
	f := p.engine
	f.parsed = append(f.parsed, path)
	for _, ev := range f.events[path] {
		p.cfg.Handler.Handle(ev)
	}
	if err := f.failures[path]; err != nil {
		return err
	}
	if g := f.discovers[path]; g != nil {
		if _, ok := p.pool.Get(g.Key()); !ok && p.cfg.Features.CacheGrammarFromParse {
			p.pool.Put(g)
		}
	}
	if key, ok := f.requires[path]; ok {
		if _, found := p.pool.Get(key); !found {
			p.cfg.Handler.Handle(diag.Event{
				Severity: diag.Error,
				SystemID: path,
				Line:     1,
				Column:   1,
				Message:  "no grammar for " + key.String(),
			})
		}
	}
	return nil
}

func (p *fakeParser) Close() error {
	p.engine.closed++
	return nil
}

var errUnreadable = errors.New("open document: no such file or directory")

func orderGrammar() *grammar.Grammar {
	return &grammar.Grammar{
		Namespace: "urn:order",
		Location:  "/schemas/order.xsd",
		Documents: []grammar.Document{{SystemID: "/schemas/order.xsd", Data: []byte(`<xs:schema targetNamespace="urn:order"/>`)}},
	}
}
