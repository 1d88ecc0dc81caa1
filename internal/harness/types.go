package harness

import (
	"github.com/roach88/carta/internal/state"
)

// Trace entry types.
const (
	EntryDispatch = "dispatch"
	EntrySync     = "sync"
	EntryEvent    = "event"
)

// Step outcomes recorded in the trace.
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "rejected"
	OutcomeAdopted   = "adopted"
	OutcomeCurrent   = "current"
	OutcomeFailed    = "failed"
)

// TraceEvent is one entry of a scenario trace: a dispatch or sync step, or
// a bus event seen by an instance.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Action   string `json:"action,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Source   string `json:"source,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// Label is the name trace assertions match against.
func (e TraceEvent) Label() string {
	switch e.Type {
	case EntryDispatch:
		return e.Action
	case EntryEvent:
		return e.Topic
	}
	return e.Type
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// States holds the final state of each instance.
	States map[string]state.State `json:"states,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		States: make(map[string]state.State),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends e with the next sequence number and returns its index.
func (r *Result) record(e TraceEvent) int {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
	return len(r.Trace) - 1
}
