package schemaloc

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// XMLNamespace is bound to the xml prefix in every document.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

var (
	errUnboundPrefix  = errors.New("namespace prefix is not defined")
	errDuplicateAttr  = errors.New("attribute redefined")
	errReservedPrefix = errors.New("reserved namespace prefix")
)

type nsScope struct {
	prefixes   map[string]string
	defaultNS  string
	defaultSet bool
}

// nsStack tracks the namespace declarations in scope while scanning raw
// tokens.
type nsStack struct {
	scopes []nsScope
}

// push opens the scope of a start tag with the given raw attributes.
func (s *nsStack) push(attrs []xml.Attr) error {
	scope := nsScope{}
	for _, a := range attrs {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			scope.defaultNS = a.Value
			scope.defaultSet = true
		case a.Name.Space == "xmlns":
			prefix := a.Name.Local
			if prefix == "xmlns" || (prefix == "xml" && a.Value != XMLNamespace) {
				return fmt.Errorf("%w %s", errReservedPrefix, prefix)
			}
			if a.Value == "" {
				return fmt.Errorf("empty namespace name for prefix %s", prefix)
			}
			if scope.prefixes == nil {
				scope.prefixes = make(map[string]string, 1)
			}
			scope.prefixes[prefix] = a.Value
		}
	}
	s.scopes = append(s.scopes, scope)
	return nil
}

func (s *nsStack) pop() {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *nsStack) lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		scope := s.scopes[i]
		if prefix == "" {
			if scope.defaultSet {
				return scope.defaultNS, true
			}
			continue
		}
		if v, ok := scope.prefixes[prefix]; ok {
			return v, true
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// resolve expands the element and attribute names of a raw start tag.
// Namespace declarations are dropped from the returned attributes.
func (s *nsStack) resolve(t xml.StartElement) (xml.Name, []xml.Attr, error) {
	if t.Name.Space == "xmlns" {
		return xml.Name{}, nil, fmt.Errorf("%w xmlns on element %s", errReservedPrefix, rawName(t.Name))
	}
	space, ok := s.lookup(t.Name.Space)
	if !ok {
		return xml.Name{}, nil, fmt.Errorf("%w: %s on %s", errUnboundPrefix, t.Name.Space, rawName(t.Name))
	}
	name := xml.Name{Space: space, Local: t.Name.Local}

	raw := make(map[xml.Name]bool, len(t.Attr))
	expanded := make(map[xml.Name]bool, len(t.Attr))
	attrs := make([]xml.Attr, 0, len(t.Attr))
	for _, a := range t.Attr {
		if raw[a.Name] {
			return xml.Name{}, nil, fmt.Errorf("%w: %s", errDuplicateAttr, rawName(a.Name))
		}
		raw[a.Name] = true
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		an := xml.Name{Local: a.Name.Local}
		if a.Name.Space != "" {
			v, ok := s.lookup(a.Name.Space)
			if !ok {
				return xml.Name{}, nil, fmt.Errorf("%w: %s on %s", errUnboundPrefix, a.Name.Space, rawName(a.Name))
			}
			an.Space = v
		}
		if expanded[an] {
			return xml.Name{}, nil, fmt.Errorf("%w: %s", errDuplicateAttr, rawName(a.Name))
		}
		expanded[an] = true
		attrs = append(attrs, xml.Attr{Name: an, Value: a.Value})
	}
	return name, attrs, nil
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
