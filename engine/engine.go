// Package engine defines the capability a schema-aware XML validator must
// provide to the orchestrator. Implementations own schema compilation, the
// validation rules and the contents of grammar pools.
package engine

import (
	"github.com/jacoelho/validatecache/diag"
	"github.com/jacoelho/validatecache/grammar"
)

// Features switches parser behaviour.
type Features struct {
	// Namespaces enables namespace-aware parsing.
	Namespaces bool
	// NamespacePrefixes reports xmlns attributes to the document handler.
	NamespacePrefixes bool
	// Schema enables XML Schema validation.
	Schema bool
	// SchemaFullChecking re-verifies schema constraints against the schema's
	// own structure.
	SchemaFullChecking bool
	// HandleMultipleImports allows several imports of one namespace.
	HandleMultipleImports bool
	// Dynamic validates only when a schema is referenced or available.
	Dynamic bool
	// CacheGrammarFromParse adds schemas discovered while parsing to the pool.
	CacheGrammarFromParse bool
}

// DefaultFeatures returns the fixed validation profile. Full schema checking
// is always off.
func DefaultFeatures() Features {
	return Features{
		Namespaces:            true,
		NamespacePrefixes:     true,
		Schema:                true,
		SchemaFullChecking:    false,
		HandleMultipleImports: true,
		Dynamic:               true,
	}
}

// Config binds a parser to a pool and a diagnostic sink.
type Config struct {
	// Pool seeds the parser with grammars and receives grammars cached from
	// parse. A nil pool means the parser keeps a private one.
	Pool *grammar.Pool
	// Handler is the sole sink for diagnostics.
	Handler  diag.Handler
	Features Features
}

// Engine builds parsers.
type Engine interface {
	NewParser(cfg Config) (Parser, error)
}

// Parser validates documents. Diagnostics go to the configured handler; a
// returned error means the document could not be read or parsed at all.
// Parsers may be reused sequentially and are not safe for concurrent use.
type Parser interface {
	Parse(documentPath string) error
	Close() error
}
