package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

// TraceSnapshot captures what a golden file pins for a case: the outcome,
// the trace and the final variables.
type TraceSnapshot struct {
	Case    string
	RunID   string
	Status  string
	Error   string
	Trace   []TraceEntry
	Globals map[string]expr.Value
	Locals  map[string]expr.Value
}

// NewTraceSnapshot builds the snapshot of result under name.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		Case:    name,
		RunID:   result.RunID,
		Status:  result.Status,
		Error:   result.Error,
		Trace:   result.Trace,
		Globals: result.Globals,
		Locals:  result.Locals,
	}
}

// toCanonical converts the snapshot into the canonical value model.
// Variables are rendered with their Go-syntax form so kinds stay visible
// without floats in the encoding.
func (s *TraceSnapshot) toCanonical() ir.Object {
	trace := make(ir.Array, len(s.Trace))
	for i, e := range s.Trace {
		entry := ir.Object{
			"seq":      ir.Int(e.Seq),
			"level":    ir.Str(e.Level),
			"activity": ir.Str(e.Activity),
			"message":  ir.Str(e.Message),
		}
		if e.Node != "" {
			entry["node"] = ir.Str(e.Node)
		}
		trace[i] = entry
	}

	out := ir.Object{
		"case":   ir.Str(s.Case),
		"run_id": ir.Str(s.RunID),
		"status": ir.Str(s.Status),
		"trace":  trace,
		"variables": ir.Object{
			"global":   canonicalVars(s.Globals),
			"scenario": canonicalVars(s.Locals),
		},
	}
	if s.Error != "" {
		out["error"] = ir.Str(s.Error)
	}
	return out
}

func canonicalVars(vars map[string]expr.Value) ir.Object {
	out := make(ir.Object, len(vars))
	for name, v := range vars {
		out[name] = ir.Str(v.GoString())
	}
	return out
}

// Marshal renders the snapshot as canonical JSON followed by a newline.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := ir.MarshalCanonical(s.toCanonical())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a case and compares its snapshot against
// testdata/golden/{case.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the case cannot be executed. A snapshot mismatch
// fails t through goldie.
func RunWithGolden(t *testing.T, c *Case) (*Result, error) {
	t.Helper()

	result, err := Run(c)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, c.Name, result)
}

// AssertGolden compares an existing result against the golden file for
// name without re-running the case.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := NewTraceSnapshot(name, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
