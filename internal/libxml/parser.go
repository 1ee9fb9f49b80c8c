package libxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"

	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/grammar"
	"github.com/jacoelho/validatecache/internal/schemaloc"
)

// driverNamespace is the target namespace of the synthetic schema that
// imports every grammar a document needs.
const driverNamespace = "urn:x-validatecache:driver"

var errParserClosed = errors.New("parser is closed")

type parser struct {
	engine   *Engine
	pool     *grammar.Pool
	handler  diag.Handler
	compiled map[string]*xsdvalidate.XsdHandler
	features engine.Features
	closed   bool
}

// Parse implements engine.Parser.
func (p *parser) Parse(path string) error {
	if p.closed {
		return errParserClosed
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to open primary document entity '%s': %w", path, err)
	}
	base, err := filepath.Abs(path)
	if err != nil {
		base = path
	}

	root, err := schemaloc.Scan(bytes.NewReader(data))
	if err != nil {
		var se *schemaloc.SyntaxError
		if errors.As(err, &se) {
			p.emit(diag.Event{SystemID: path, Message: se.Msg, Line: se.Line, Column: se.Column, Severity: diag.FatalError})
			return nil
		}
		return fmt.Errorf("scan %s: %w", path, err)
	}
	doc, ok, err := p.parseDocument(path, data)
	if err != nil || !ok {
		return err
	}
	defer doc.Free()
	if !p.features.Schema {
		return nil
	}

	grammars := p.selectGrammars(path, base, root)
	if len(grammars) == 0 {
		if !p.features.Dynamic {
			p.emit(diag.Event{
				SystemID: path,
				Message:  fmt.Sprintf("no grammar found for root element '%s'", root.Local),
				Line:     root.Line,
				Column:   root.Column,
				Severity: diag.Error,
			})
		}
		return nil
	}

	schema, err := p.compile(grammars)
	if err != nil {
		p.emit(diag.Event{SystemID: path, Message: err.Error(), Line: root.Line, Column: root.Column, Severity: diag.Error})
		return nil
	}
	return p.validate(path, doc, schema)
}

// Close implements engine.Parser. It frees every compiled schema.
func (p *parser) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	for id, h := range p.compiled {
		h.Free()
		delete(p.compiled, id)
	}
	return nil
}

func (p *parser) emit(ev diag.Event) {
	p.handler.Handle(ev)
}

// selectGrammars returns the grammars named by the document's hints,
// followed by the pool grammar for the root namespace when no hint
// covered it.
func (p *parser) selectGrammars(path, base string, root schemaloc.Root) []*grammar.Grammar {
	var out []*grammar.Grammar
	seen := make(map[grammar.Key]bool)
	for _, h := range root.Hints {
		g := p.grammarForHint(path, base, h)
		if g == nil || seen[g.Key()] {
			continue
		}
		seen[g.Key()] = true
		out = append(out, g)
	}
	key := grammar.Key{Namespace: root.Namespace}
	if !seen[key] {
		if g, ok := p.pool.Get(key); ok {
			p.engine.logger.Debug("grammar from pool", "namespace", key.String(), "location", g.Location)
			out = append(out, g)
		}
	}
	return out
}

func (p *parser) grammarForHint(path, base string, h schemaloc.Hint) *grammar.Grammar {
	key := grammar.Key{Namespace: h.Namespace}
	if g, ok := p.pool.Get(key); ok {
		p.engine.logger.Debug("grammar from pool", "namespace", key.String(), "location", g.Location)
		return g
	}
	at := func(sev diag.Severity, format string, args ...any) {
		p.emit(diag.Event{
			SystemID: path,
			Message:  fmt.Sprintf(format, args...),
			Line:     h.Line,
			Column:   h.Column,
			Severity: sev,
		})
	}

	s, err := schemaloc.Collect(p.engine.resolver, schemaloc.ResolveRequest{
		BaseSystemID:   base,
		SchemaLocation: h.Location,
		Namespace:      h.Namespace,
		Kind:           schemaloc.ResolveInstance,
	})
	if err != nil {
		at(diag.Warning, "unable to load schema document '%s' for %s: %v", h.Location, key, err)
		return nil
	}
	for _, u := range s.Unresolved {
		p.emit(diag.Event{
			SystemID: u.From,
			Message:  fmt.Sprintf("unable to load %s schema document '%s': %v", u.Kind, u.Location, u.Err),
			Severity: diag.Warning,
		})
	}
	if s.TargetNamespace != h.Namespace {
		at(diag.Error, "schema document '%s' has target namespace '%s', expected '%s'", h.Location, s.TargetNamespace, h.Namespace)
		return nil
	}

	g := s.Grammar()
	if _, err := p.compile([]*grammar.Grammar{g}); err != nil {
		at(diag.Error, "%v", err)
		return nil
	}
	if p.features.CacheGrammarFromParse && p.pool.Put(g) {
		p.engine.logger.Debug("grammar cached from parse", "namespace", key.String(), "location", g.Location, "documents", len(g.Documents))
	}
	return g
}

func compileID(gs []*grammar.Grammar) string {
	parts := make([]string, 0, len(gs))
	for _, g := range gs {
		parts = append(parts, g.Namespace+"\x00"+g.Location)
	}
	slices.Sort(parts)
	return strings.Join(parts, "\x01")
}

// compile returns the compiled schema for gs, reusing earlier compilations
// of the same set.
func (p *parser) compile(gs []*grammar.Grammar) (*xsdvalidate.XsdHandler, error) {
	id := compileID(gs)
	if h, ok := p.compiled[id]; ok {
		return h, nil
	}

	var (
		h   *xsdvalidate.XsdHandler
		err error
	)
	if len(gs) == 1 && len(gs[0].Documents) == 1 {
		h, err = xsdvalidate.NewXsdHandlerMem(gs[0].Documents[0].Data, xsdvalidate.ParsErrDefault)
	} else {
		h, err = compileMirrored(gs)
	}
	if err != nil {
		if h != nil {
			h.Free()
		}
		return nil, fmt.Errorf("schema compilation failed: %w", err)
	}
	p.compiled[id] = h
	p.engine.logger.Debug("schema compiled", "grammars", len(gs))
	return h, nil
}

// compileMirrored writes every document under a temporary directory at a
// path mirroring its system id, so relative references between documents
// resolve among the captured bytes, then compiles from there. Several
// grammars are tied together by a driver schema importing each of them.
func compileMirrored(gs []*grammar.Grammar) (h *xsdvalidate.XsdHandler, err error) {
	dir, err := os.MkdirTemp("", "validatecache-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	for _, g := range gs {
		for _, d := range g.Documents {
			dst := mirrorPath(dir, d.SystemID)
			if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
				return nil, err
			}
			if err := os.WriteFile(dst, d.Data, 0o600); err != nil {
				return nil, err
			}
		}
	}

	entry := mirrorPath(dir, gs[0].Location)
	if len(gs) > 1 {
		entry = filepath.Join(dir, "driver.xsd")
		if err := os.WriteFile(entry, driverSchema(dir, gs), 0o600); err != nil {
			return nil, err
		}
	}
	return xsdvalidate.NewXsdHandlerUrl(entry, xsdvalidate.ParsErrDefault)
}

// mirrorPath maps a system id below dir. Remote ids keep their scheme, host
// and path as directories so relative references still line up.
func mirrorPath(dir, systemID string) string {
	if schemaloc.IsRemote(systemID) {
		if u, err := url.Parse(systemID); err == nil {
			host := strings.ReplaceAll(u.Host, ":", "_")
			return filepath.Join(dir, "src", strings.ToLower(u.Scheme), host, filepath.FromSlash(u.Path))
		}
	}
	p := filepath.FromSlash(systemID)
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	return filepath.Join(dir, "src", p)
}

func driverSchema(dir string, gs []*grammar.Grammar) []byte {
	var b bytes.Buffer
	b.WriteString("<?xml version=\"1.0\"?>\n")
	fmt.Fprintf(&b, "<xs:schema xmlns:xs=\"%s\" targetNamespace=\"%s\">\n", schemaloc.XSDNamespace, driverNamespace)
	for _, g := range gs {
		loc := (&url.URL{Scheme: "file", Path: filepath.ToSlash(mirrorPath(dir, g.Location))}).String()
		if g.Namespace == "" {
			fmt.Fprintf(&b, "  <xs:import schemaLocation=\"%s\"/>\n", escapeAttr(loc))
			continue
		}
		fmt.Fprintf(&b, "  <xs:import namespace=\"%s\" schemaLocation=\"%s\"/>\n", escapeAttr(g.Namespace), escapeAttr(loc))
	}
	b.WriteString("</xs:schema>\n")
	return b.Bytes()
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// parseDocument builds the libxml2 tree of data. It reports false after
// emitting a FatalError when libxml2 rejects the document.
func (p *parser) parseDocument(path string, data []byte) (*xsdvalidate.XmlHandler, bool, error) {
	doc, err := xsdvalidate.NewXmlHandlerMem(data, p.engine.parse)
	if err == nil {
		return doc, true, nil
	}
	if doc != nil {
		doc.Free()
	}
	var pe xsdvalidate.XmlParserError
	if errors.As(err, &pe) {
		p.emit(diag.Event{SystemID: path, Message: pe.Error(), Severity: diag.FatalError})
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("parse %s: %w", path, err)
}

func (p *parser) validate(path string, doc *xsdvalidate.XmlHandler, schema *xsdvalidate.XsdHandler) error {
	err := schema.Validate(doc, xsdvalidate.ValidErrDefault)
	if err == nil {
		return nil
	}
	var ve xsdvalidate.ValidationError
	if errors.As(err, &ve) {
		for _, ev := range eventsOf(path, ve) {
			p.emit(ev)
		}
		return nil
	}
	return fmt.Errorf("validate %s: %w", path, err)
}
