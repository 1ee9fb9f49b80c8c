// Package diag models the diagnostics a validation engine reports while it
// parses a document and reduces them to a single pass/fail verdict.
package diag

import "fmt"

// Severity selects the channel an event is reported on.
type Severity uint8

const (
	// Warning never affects the verdict.
	Warning Severity = iota + 1
	// Error is a recoverable violation; parsing continued after it.
	Error
	// FatalError is a violation that stopped parsing.
	FatalError
)

// String returns the label used when rendering the severity.
func (s Severity) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case FatalError:
		return "Fatal error"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// Event is one diagnostic with its source location. Line and Column are
// 1-based; zero means unknown.
type Event struct {
	SystemID string
	Code     string
	Message  string
	Line     int
	Column   int
	Severity Severity
}

// IsError reports whether the event marks the document invalid.
func (e Event) IsError() bool {
	return e.Severity == Error || e.Severity == FatalError
}

// Handler consumes diagnostic events in emission order.
type Handler interface {
	Handle(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) {
	f(ev)
}

// Multi returns a handler that forwards each event to every non-nil handler.
func Multi(handlers ...Handler) Handler {
	out := make(multi, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multi []Handler

func (m multi) Handle(ev Event) {
	for _, h := range m {
		h.Handle(ev)
	}
}
