// Package grammar holds compiled-schema sources keyed by target namespace and
// owns the binary cache format used to persist them between runs.
package grammar

import (
	"bytes"
	"cmp"
	"slices"
)

// Key identifies a grammar inside a pool. Schemas without a target namespace
// use the empty namespace.
type Key struct {
	Namespace string
}

// String returns a display form of the key.
func (k Key) String() string {
	if k.Namespace == "" {
		return "(no namespace)"
	}
	return k.Namespace
}

// Document is one schema document that contributes to a grammar.
type Document struct {
	SystemID string
	Data     []byte
}

// Grammar is the full source set of one schema: the root document first,
// followed by every document it includes or imports, in discovery order.
type Grammar struct {
	Namespace string
	Location  string
	Documents []Document
}

// Key returns the pool key of the grammar.
func (g *Grammar) Key() Key {
	if g == nil {
		return Key{}
	}
	return Key{Namespace: g.Namespace}
}

// Root returns the root schema document.
func (g *Grammar) Root() (Document, bool) {
	if g == nil || len(g.Documents) == 0 {
		return Document{}, false
	}
	return g.Documents[0], true
}

// Equal reports whether two grammars carry identical sources.
func (g *Grammar) Equal(other *Grammar) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.Namespace != other.Namespace || g.Location != other.Location {
		return false
	}
	return slices.EqualFunc(g.Documents, other.Documents, func(a, b Document) bool {
		return a.SystemID == b.SystemID && bytes.Equal(a.Data, b.Data)
	})
}

func (g *Grammar) clone() *Grammar {
	docs := make([]Document, len(g.Documents))
	for i, d := range g.Documents {
		docs[i] = Document{SystemID: d.SystemID, Data: bytes.Clone(d.Data)}
	}
	return &Grammar{Namespace: g.Namespace, Location: g.Location, Documents: docs}
}

// Pool is a collection of grammars reusable across validation calls.
// Pools are not safe for concurrent use; a pool may be reused sequentially.
type Pool struct {
	grammars map[Key]*Grammar
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{grammars: make(map[Key]*Grammar)}
}

// Get returns the grammar stored under key.
func (p *Pool) Get(key Key) (*Grammar, bool) {
	if p == nil {
		return nil, false
	}
	g, ok := p.grammars[key]
	return g, ok
}

// Put stores g unless a grammar with the same key is already present.
// It reports whether g was added. Known grammars are never replaced, so
// rediscovering a schema leaves the pool unchanged.
func (p *Pool) Put(g *Grammar) bool {
	if p == nil || g == nil || len(g.Documents) == 0 {
		return false
	}
	if p.grammars == nil {
		p.grammars = make(map[Key]*Grammar)
	}
	key := g.Key()
	if _, ok := p.grammars[key]; ok {
		return false
	}
	p.grammars[key] = g
	return true
}

// Len returns the number of grammars in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.grammars)
}

// Keys returns the pool keys in namespace order.
func (p *Pool) Keys() []Key {
	if p == nil {
		return nil
	}
	keys := make([]Key, 0, len(p.grammars))
	for k := range p.grammars {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int { return cmp.Compare(a.Namespace, b.Namespace) })
	return keys
}

// Grammars returns the grammars in key order.
func (p *Pool) Grammars() []*Grammar {
	keys := p.Keys()
	out := make([]*Grammar, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.grammars[k])
	}
	return out
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	out := NewPool()
	if p == nil {
		return out
	}
	for k, g := range p.grammars {
		out.grammars[k] = g.clone()
	}
	return out
}

// Equal reports whether both pools hold the same grammars.
func (p *Pool) Equal(other *Pool) bool {
	if p.Len() != other.Len() {
		return false
	}
	for _, k := range p.Keys() {
		a, _ := p.Get(k)
		b, ok := other.Get(k)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}
