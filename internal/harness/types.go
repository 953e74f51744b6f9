package harness

import (
	"fmt"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
)

// TraceEntry is one run log entry as the harness sees it. Timestamps are
// left out; the sequence number orders entries.
type TraceEntry struct {
	Seq      uint64 `json:"seq"`
	Node     string `json:"node,omitempty"`
	Level    string `json:"level"`
	Activity string `json:"activity"`
	Message  string `json:"message"`
}

// String renders the entry for failure messages.
func (e TraceEntry) String() string {
	return fmt.Sprintf("[%d] %-5s [%s] %s", e.Seq, e.Level, e.Activity, e.Message)
}

func traceEntry(e runlog.Entry) TraceEntry {
	return TraceEntry{
		Seq:      e.Seq,
		Node:     e.NodeID,
		Level:    e.Level.String(),
		Activity: string(e.Activity),
		Message:  e.Message,
	}
}

// Result is the outcome of a case execution.
type Result struct {
	// Pass is true when the expect clause and every assertion held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Status is the machine's terminal state name.
	Status string `json:"status"`

	// Error is the text of the error that ended the run, if any.
	Error string `json:"error,omitempty"`

	Steps int `json:"steps"`

	// Trace is the run log, oldest first.
	Trace []TraceEntry `json:"trace"`

	// Globals and Locals are the final Global store and main scenario
	// locals.
	Globals map[string]expr.Value `json:"globals"`
	Locals  map[string]expr.Value `json:"locals"`

	// Errors lists every expectation that failed. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEntry{},
		Globals: map[string]expr.Value{},
		Locals:  map[string]expr.Value{},
		Errors:  []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends run log entries to the trace.
func (r *Result) AddTrace(entries ...runlog.Entry) {
	for _, e := range entries {
		r.Trace = append(r.Trace, traceEntry(e))
	}
}
