package diag

// Counts tallies events per severity.
type Counts struct {
	Warnings    int
	Errors      int
	FatalErrors int
}

// Aggregator records events and keeps the "saw error" verdict. Errors and
// fatal errors both fail the document; warnings never do. It is not safe for
// concurrent use and must be Reset between documents.
type Aggregator struct {
	events   []Event
	counts   Counts
	sawError bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Handle records ev.
func (a *Aggregator) Handle(ev Event) {
	a.events = append(a.events, ev)
	switch ev.Severity {
	case Warning:
		a.counts.Warnings++
	case Error:
		a.counts.Errors++
		a.sawError = true
	case FatalError:
		a.counts.FatalErrors++
		a.sawError = true
	}
}

// HadError reports whether any error or fatal error was recorded since the
// last Reset.
func (a *Aggregator) HadError() bool {
	return a.sawError
}

// Counts returns the per-severity tallies.
func (a *Aggregator) Counts() Counts {
	return a.counts
}

// Events returns a copy of the recorded events.
func (a *Aggregator) Events() []Event {
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

// Reset clears the verdict and all recorded events.
func (a *Aggregator) Reset() {
	a.events = a.events[:0]
	a.counts = Counts{}
	a.sawError = false
}
