package schemaloc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"

	"github.com/jacoelho/validatecache/grammar"
)

// Reference is a composition directive found in a schema document.
type Reference struct {
	From      string
	Location  string
	Namespace string
	Kind      ResolveKind
}

// Unresolved is a reference Collect could not follow.
type Unresolved struct {
	Err error
	Reference
}

// Schema is a schema document together with every document it reaches.
type Schema struct {
	TargetNamespace string
	// SystemID of the root schema document.
	SystemID string
	// Documents in breadth-first discovery order, root first.
	Documents  []grammar.Document
	Unresolved []Unresolved
}

// Grammar returns the schema as a cacheable grammar.
func (s *Schema) Grammar() *grammar.Grammar {
	if s == nil || len(s.Documents) == 0 {
		return nil
	}
	docs := make([]grammar.Document, len(s.Documents))
	copy(docs, s.Documents)
	return &grammar.Grammar{
		Namespace: s.TargetNamespace,
		Location:  s.SystemID,
		Documents: docs,
	}
}

// Collect resolves req, then follows include, import, redefine and override
// directives breadth first. Each system id is read once, so cycles
// terminate. Only a failure on the root document is returned as an error;
// references that cannot be followed are listed in Schema.Unresolved.
func Collect(r Resolver, req ResolveRequest) (*Schema, error) {
	if r == nil {
		r = DefaultResolver{}
	}
	data, systemID, err := read(r, req)
	if err != nil {
		return nil, err
	}
	tns, refs, err := parseSchemaDocument(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", systemID, err)
	}

	s := &Schema{
		TargetNamespace: tns,
		SystemID:        systemID,
		Documents:       []grammar.Document{{SystemID: systemID, Data: data}},
	}
	visited := map[string]bool{systemID: true}
	queue := withSource(refs, systemID)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		data, id, err := read(r, ResolveRequest{
			BaseSystemID:   ref.From,
			SchemaLocation: ref.Location,
			Namespace:      ref.Namespace,
			Kind:           ref.Kind,
		})
		if err != nil {
			s.Unresolved = append(s.Unresolved, Unresolved{Reference: ref, Err: err})
			continue
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		_, nested, err := parseSchemaDocument(data)
		if err != nil {
			s.Unresolved = append(s.Unresolved, Unresolved{Reference: ref, Err: fmt.Errorf("schema %s: %w", id, err)})
			continue
		}
		s.Documents = append(s.Documents, grammar.Document{SystemID: id, Data: data})
		queue = append(queue, withSource(nested, id)...)
	}
	return s, nil
}

func read(r Resolver, req ResolveRequest) (data []byte, systemID string, err error) {
	rc, systemID, err := r.Resolve(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", systemID, closeErr)
		}
	}()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", systemID, err)
	}
	return data, systemID, nil
}

func withSource(refs []Reference, from string) []Reference {
	for i := range refs {
		refs[i].From = from
	}
	return refs
}

var errNotSchema = errors.New("root element is not xs:schema")

// parseSchemaDocument returns the targetNamespace of a schema document and
// the composition directives among its top-level children.
func parseSchemaDocument(data []byte) (string, []Reference, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel

	var (
		tns     string
		refs    []Reference
		depth   int
		hasRoot bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, syntaxError(d, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if hasRoot || t.Name.Space != XSDNamespace || t.Name.Local != "schema" {
					return "", nil, errNotSchema
				}
				hasRoot = true
				tns = attrValue(t.Attr, "targetNamespace")
				continue
			}
			if depth != 2 || t.Name.Space != XSDNamespace {
				continue
			}
			if ref, ok := directive(t); ok {
				refs = append(refs, ref)
			}
		case xml.EndElement:
			depth--
		}
	}
	if !hasRoot {
		return "", nil, errNotSchema
	}
	return tns, refs, nil
}

func directive(t xml.StartElement) (Reference, bool) {
	var kind ResolveKind
	switch t.Name.Local {
	case "include":
		kind = ResolveInclude
	case "import":
		kind = ResolveImport
	case "redefine":
		kind = ResolveRedefine
	case "override":
		kind = ResolveOverride
	default:
		return Reference{}, false
	}
	loc := attrValue(t.Attr, "schemaLocation")
	if loc == "" {
		return Reference{}, false
	}
	ref := Reference{Location: loc, Kind: kind}
	if kind == ResolveImport {
		ref.Namespace = attrValue(t.Attr, "namespace")
	}
	return ref, true
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
