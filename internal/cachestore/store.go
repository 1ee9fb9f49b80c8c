// Package cachestore reads and writes grammar pools as cache files. Every
// failure is reported as a classified, non-fatal error; the caller decides
// what to log and always receives a usable pool from Load.
package cachestore

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"

	"github.com/jacoelho/validatecache/errors"
	"github.com/jacoelho/validatecache/grammar"
)

// DefaultFileMode is used when creating a cache file.
const DefaultFileMode fs.FileMode = 0o644

// Store loads and saves grammar caches.
type Store struct {
	mode fs.FileMode
}

// Option configures a Store.
type Option func(*Store)

// WithFileMode sets the permission bits of newly created cache files.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Store) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// New returns a Store.
func New(opts ...Option) *Store {
	s := &Store{mode: DefaultFileMode}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load reads the pool stored at path. It always returns a usable pool: on
// any failure (missing, empty, unreadable, corrupt or incompatible file) the
// pool is fresh and empty and the error is classified as errors.CodeCacheLoad.
func (s *Store) Load(path string) (*grammar.Pool, error) {
	pool, err := s.load(path)
	if err != nil {
		return grammar.NewPool(), errors.Wrap(err, errors.CodeCacheLoad, "load grammar cache", path)
	}
	return pool, nil
}

func (s *Store) load(path string) (pool *grammar.Pool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			pool, err = nil, fmt.Errorf("close cache file: %w", closeErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat cache file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cache path is a directory")
	}
	return grammar.Decode(bufio.NewReader(f))
}

// Save writes pool to path, replacing previous contents. The pool is
// serialized before the file is touched, so an encoding failure leaves the
// existing cache intact. Failures are classified as errors.CodeCacheSave.
func (s *Store) Save(path string, pool *grammar.Pool) error {
	if err := s.save(path, pool); err != nil {
		return errors.Wrap(err, errors.CodeCacheSave, "save grammar cache", path)
	}
	return nil
}

func (s *Store) save(path string, pool *grammar.Pool) (err error) {
	data, err := grammar.Marshal(pool)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.mode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close cache file: %w", closeErr)
		}
	}()

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush cache file: %w", err)
	}
	return nil
}
