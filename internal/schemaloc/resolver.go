package schemaloc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ResolveKind identifies what referenced the location being resolved.
type ResolveKind uint8

const (
	ResolveInstance ResolveKind = iota
	ResolveInclude
	ResolveImport
	ResolveRedefine
	ResolveOverride
)

func (k ResolveKind) String() string {
	switch k {
	case ResolveInstance:
		return "instance"
	case ResolveInclude:
		return "include"
	case ResolveImport:
		return "import"
	case ResolveRedefine:
		return "redefine"
	case ResolveOverride:
		return "override"
	default:
		return fmt.Sprintf("ResolveKind(%d)", uint8(k))
	}
}

// ResolveRequest describes one schema location lookup.
type ResolveRequest struct {
	BaseSystemID   string
	SchemaLocation string
	Namespace      string
	Kind           ResolveKind
}

// Resolver opens schema documents and returns their canonical system ids.
type Resolver interface {
	Resolve(req ResolveRequest) (doc io.ReadCloser, systemID string, err error)
}

// ErrUnsupportedLocation reports a location whose scheme is not file, http
// or https.
var ErrUnsupportedLocation = errors.New("unsupported schema location")

// DefaultHTTPTimeout bounds a remote schema fetch when no client is given.
const DefaultHTTPTimeout = 30 * time.Second

// DefaultResolver resolves locations against the local filesystem and
// fetches http and https locations. Local system ids are absolute, cleaned
// paths; remote system ids are the absolute URL.
type DefaultResolver struct {
	// HTTPClient fetches remote schemas. Nil means a client with
	// DefaultHTTPTimeout.
	HTTPClient *http.Client
}

// Resolve implements Resolver.
func (r DefaultResolver) Resolve(req ResolveRequest) (io.ReadCloser, string, error) {
	systemID, err := ResolveLocation(req.BaseSystemID, req.SchemaLocation)
	if err != nil {
		return nil, "", err
	}
	if IsRemote(systemID) {
		body, err := r.fetch(systemID)
		if err != nil {
			return nil, "", err
		}
		return body, systemID, nil
	}
	f, err := os.Open(systemID)
	if err != nil {
		return nil, "", err
	}
	return f, systemID, nil
}

func (r DefaultResolver) fetch(systemID string) (io.ReadCloser, error) {
	client := r.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, systemID, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", systemID, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", systemID, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", systemID, resp.Status)
	}
	return resp.Body, nil
}

// IsRemote reports whether systemID is an http or https URL.
func IsRemote(systemID string) bool {
	u, err := url.Parse(systemID)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	default:
		return false
	}
}

// ResolveLocation turns a schema location found in baseSystemID into a
// system id. Relative locations are taken relative to baseSystemID, which
// may itself be a path or an http(s) URL. File URLs become paths; http and
// https URLs are kept; every other scheme fails with ErrUnsupportedLocation.
func ResolveLocation(baseSystemID, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("schema location is empty")
	}
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		switch strings.ToLower(u.Scheme) {
		case "file":
			if u.Path == "" {
				return "", fmt.Errorf("file location has no path: %q", location)
			}
			return filepath.Clean(filepath.FromSlash(u.Path)), nil
		case "http", "https":
			if u.Host == "" {
				return "", fmt.Errorf("%s location has no host: %q", u.Scheme, location)
			}
			return u.String(), nil
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedLocation, location)
		}
	}

	if IsRemote(baseSystemID) {
		base, err := url.Parse(baseSystemID)
		if err != nil {
			return "", fmt.Errorf("resolve schema location %s: %w", location, err)
		}
		ref, err := url.Parse(filepath.ToSlash(location))
		if err != nil {
			return "", fmt.Errorf("resolve schema location %s: %w", location, err)
		}
		return base.ResolveReference(ref).String(), nil
	}

	p := filepath.FromSlash(location)
	if !filepath.IsAbs(p) {
		base := filepath.Dir(baseSystemID)
		if baseSystemID == "" {
			base = "."
		}
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve schema location %s: %w", location, err)
	}
	return abs, nil
}
