// Package schemaloc finds the schemas an XML document asks to be validated
// against and gathers the source documents that make up a schema.
package schemaloc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	// XSINamespace is the XML Schema instance namespace.
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	// XSDNamespace is the XML Schema namespace.
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
)

// Hint is one schema location supplied by an instance document.
type Hint struct {
	Namespace string
	Location  string
	// Attribute names the attribute that carried the hint.
	Attribute string
	// Line and Column locate the end of the start tag carrying the hint.
	Line   int
	Column int
}

// Root summarises an instance document.
type Root struct {
	Namespace string
	Local     string
	// Line and Column locate the end of the root start tag.
	Line   int
	Column int
	// Hints are in document order with one entry per namespace; the first
	// location given for a namespace wins.
	Hints []Hint
}

// SyntaxError reports a document that is not well-formed.
type SyntaxError struct {
	Msg    string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Scan reads r to the end, checking well-formedness, namespace
// well-formedness and attribute uniqueness, and collecting the root element
// name and every xsi schema location hint.
func Scan(r io.Reader) (Root, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	var (
		root    Root
		seen    = make(map[string]bool)
		open    []xml.Name
		ns      nsStack
		hasRoot bool
	)
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			if len(open) > 0 {
				return Root{}, syntaxError(d, fmt.Errorf("premature end of data in tag %s", rawName(open[len(open)-1])))
			}
			break
		}
		if err != nil {
			return Root{}, syntaxError(d, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(open) == 0 && hasRoot {
				return Root{}, syntaxError(d, errors.New("extra content at the end of the document"))
			}
			if err := ns.push(t.Attr); err != nil {
				return Root{}, syntaxError(d, err)
			}
			name, attrs, err := ns.resolve(t)
			if err != nil {
				return Root{}, syntaxError(d, err)
			}
			open = append(open, t.Name)
			line, col := d.InputPos()
			if !hasRoot {
				hasRoot = true
				root.Namespace = name.Space
				root.Local = name.Local
				root.Line, root.Column = line, col
			}
			for _, h := range hintsFromAttrs(attrs) {
				if seen[h.Namespace] {
					continue
				}
				seen[h.Namespace] = true
				h.Line, h.Column = line, col
				root.Hints = append(root.Hints, h)
			}
		case xml.EndElement:
			if len(open) == 0 || open[len(open)-1] != t.Name {
				return Root{}, syntaxError(d, fmt.Errorf("unexpected end tag </%s>", rawName(t.Name)))
			}
			open = open[:len(open)-1]
			ns.pop()
		case xml.CharData:
			if len(open) == 0 && len(bytes.TrimSpace(t)) > 0 {
				return Root{}, syntaxError(d, errors.New("content outside the root element"))
			}
		}
	}
	if !hasRoot {
		return Root{}, syntaxError(d, errors.New("document has no root element"))
	}
	return root, nil
}

func hintsFromAttrs(attrs []xml.Attr) []Hint {
	var hints []Hint
	for _, attr := range attrs {
		if attr.Name.Space != XSINamespace {
			continue
		}
		switch attr.Name.Local {
		case "schemaLocation":
			hints = append(hints, hintsFromSchemaLocation(attr.Value)...)
		case "noNamespaceSchemaLocation":
			if loc := strings.TrimSpace(attr.Value); loc != "" {
				hints = append(hints, Hint{Location: loc, Attribute: "xsi:noNamespaceSchemaLocation"})
			}
		}
	}
	return hints
}

// hintsFromSchemaLocation splits namespace/location pairs; an odd trailing
// field is ignored.
func hintsFromSchemaLocation(value string) []Hint {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return nil
	}
	hints := make([]Hint, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		hints = append(hints, Hint{
			Namespace: fields[i],
			Location:  fields[i+1],
			Attribute: "xsi:schemaLocation",
		})
	}
	return hints
}
