package grammar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Magic prefixes every serialized pool.
const Magic = "XSDGPOOL"

// FormatVersion is the only cache layout this package reads and writes.
const FormatVersion uint16 = 1

const (
	headerSize   = len(Magic) + 2 + 4
	checksumSize = 8
)

var (
	// ErrEmpty reports a zero-length cache blob.
	ErrEmpty = errors.New("empty grammar cache")
	// ErrBadMagic reports a blob that does not start with Magic.
	ErrBadMagic = errors.New("not a grammar cache")
	// ErrVersion reports a blob written in an unknown layout.
	ErrVersion = errors.New("unsupported grammar cache version")
	// ErrTruncated reports a blob that ends before its declared content.
	ErrTruncated = errors.New("truncated grammar cache")
	// ErrChecksum reports a blob whose content does not match its checksum.
	ErrChecksum = errors.New("grammar cache checksum mismatch")
	// ErrTrailingData reports bytes between the last grammar and the checksum.
	ErrTrailingData = errors.New("trailing data after grammar cache")
	// ErrDuplicate reports two grammars with the same key.
	ErrDuplicate = errors.New("duplicate grammar in cache")
)

// Marshal serializes p. Equal pools always produce identical bytes.
func Marshal(p *Pool) ([]byte, error) {
	var e encoder
	e.buf = append(e.buf, Magic...)
	e.buf = binary.BigEndian.AppendUint16(e.buf, FormatVersion)

	grammars := p.Grammars()
	if err := e.putCount(len(grammars)); err != nil {
		return nil, err
	}
	for _, g := range grammars {
		if err := e.putString(g.Namespace); err != nil {
			return nil, fmt.Errorf("encode grammar %s: %w", g.Key(), err)
		}
		if err := e.putString(g.Location); err != nil {
			return nil, fmt.Errorf("encode grammar %s: %w", g.Key(), err)
		}
		if err := e.putCount(len(g.Documents)); err != nil {
			return nil, fmt.Errorf("encode grammar %s: %w", g.Key(), err)
		}
		for _, d := range g.Documents {
			if err := e.putString(d.SystemID); err != nil {
				return nil, fmt.Errorf("encode document %s: %w", d.SystemID, err)
			}
			if err := e.putBytes(d.Data); err != nil {
				return nil, fmt.Errorf("encode document %s: %w", d.SystemID, err)
			}
		}
	}
	e.buf = binary.BigEndian.AppendUint64(e.buf, xxhash.Sum64(e.buf))
	return e.buf, nil
}

// Unmarshal rebuilds a pool from data. On any failure it returns a nil pool,
// never a partially populated one.
func Unmarshal(data []byte) (*Pool, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], []byte(Magic)) {
		return nil, ErrBadMagic
	}
	if len(data) < headerSize+checksumSize {
		return nil, ErrTruncated
	}
	if v := binary.BigEndian.Uint16(data[len(Magic):]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	body := len(data) - checksumSize
	if xxhash.Sum64(data[:body]) != binary.BigEndian.Uint64(data[body:]) {
		return nil, ErrChecksum
	}

	d := decoder{buf: data[:body], off: len(Magic) + 2}
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	pool := NewPool()
	for i := uint32(0); i < n; i++ {
		g, err := d.readGrammar()
		if err != nil {
			return nil, fmt.Errorf("decode grammar %d: %w", i, err)
		}
		if !pool.Put(g) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, g.Key())
		}
	}
	if d.remaining() != 0 {
		return nil, ErrTrailingData
	}
	return pool, nil
}

// Decode reads a serialized pool from r.
func Decode(r io.Reader) (*Pool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read grammar cache: %w", err)
	}
	return Unmarshal(data)
}

type encoder struct {
	buf []byte
}

func (e *encoder) putCount(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return fmt.Errorf("count %d out of range", n)
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(n))
	return nil
}

func (e *encoder) putString(s string) error {
	if err := e.putCount(len(s)); err != nil {
		return err
	}
	e.buf = append(e.buf, s...)
	return nil
}

func (e *encoder) putBytes(b []byte) error {
	if err := e.putCount(len(b)); err != nil {
		return err
	}
	e.buf = append(e.buf, b...)
	return nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) readUint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(d.remaining()) {
		return nil, ErrTruncated
	}
	out := bytes.Clone(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	return string(b), err
}

func (d *decoder) readGrammar() (*Grammar, error) {
	ns, err := d.readString()
	if err != nil {
		return nil, err
	}
	loc, err := d.readString()
	if err != nil {
		return nil, err
	}
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	// each document needs at least two length prefixes
	if uint64(n)*8 > uint64(d.remaining()) {
		return nil, ErrTruncated
	}
	if n == 0 {
		return nil, fmt.Errorf("grammar %q has no documents", ns)
	}
	docs := make([]Document, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := d.readString()
		if err != nil {
			return nil, err
		}
		data, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{SystemID: id, Data: data})
	}
	return &Grammar{Namespace: ns, Location: loc, Documents: docs}, nil
}
