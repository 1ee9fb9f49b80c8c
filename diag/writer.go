package diag

import (
	"fmt"
	"io"
)

// Writer renders events in the historical validator layout:
//
//	Error at file order.xml, line 3, char 14
//	  Message: ...
//
// The first write error is kept and later events are dropped.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter returns a Writer that renders to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Handle renders ev.
func (w *Writer) Handle(ev Event) {
	if w.err != nil || w.w == nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, "\n%s at file %s, line %d, char %d\n  Message: %s\n",
		ev.Severity, ev.SystemID, ev.Line, ev.Column, ev.Message)
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}
