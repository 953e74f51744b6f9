package harness

import (
	"fmt"
	"strings"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// AssertionError is returned when an assertion fails.
// It carries the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEntry
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", entry)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLogContains:
			err = assertLogContains(result.Trace, a)
		case AssertLogOrder:
			err = assertLogOrder(result.Trace, a)
		case AssertLogCount:
			err = assertLogCount(result.Trace, a)
		case AssertFinalVar:
			err = assertFinalVar(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// matches reports whether entry satisfies every non-empty filter of a.
func matches(entry TraceEntry, a Assertion) bool {
	if a.Level != "" {
		level, err := runlog.ParseLevel(a.Level)
		if err != nil || entry.Level != level.String() {
			return false
		}
	}
	if a.Activity != "" && entry.Activity != a.Activity {
		return false
	}
	if a.Node != "" && entry.Node != a.Node {
		return false
	}
	if a.Message != "" && entry.Message != a.Message {
		return false
	}
	return true
}

// describe renders the filters of a for failure messages.
func describe(a Assertion) string {
	var parts []string
	if a.Level != "" {
		parts = append(parts, "level="+a.Level)
	}
	if a.Activity != "" {
		parts = append(parts, "activity="+a.Activity)
	}
	if a.Node != "" {
		parts = append(parts, "node="+a.Node)
	}
	if a.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", a.Message))
	}
	if len(parts) == 0 {
		return "any entry"
	}
	return strings.Join(parts, " ")
}

// assertLogContains checks that some trace entry matches the assertion's
// filters.
func assertLogContains(trace []TraceEntry, a Assertion) error {
	for _, entry := range trace {
		if matches(entry, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertLogOrder checks that messages appear in the given order.
// Entries don't need to be consecutive; each message is matched at the
// first position after the previous match.
func assertLogOrder(trace []TraceEntry, a Assertion) error {
	pos := 0
	for i, msg := range a.Messages {
		found := -1
		for j := pos; j < len(trace); j++ {
			if trace[j].Message == msg {
				found = j
				break
			}
		}
		if found < 0 {
			actual := fmt.Sprintf("missing message %q", msg)
			if i > 0 {
				actual = fmt.Sprintf("%q not found after %q", msg, a.Messages[i-1])
			}
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("messages in order: %q", a.Messages),
				Actual:   actual,
				Trace:    trace,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertLogCount checks that exactly Count entries match the filters.
func assertLogCount(trace []TraceEntry, a Assertion) error {
	count := 0
	for _, entry := range trace {
		if matches(entry, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d entries matching %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalVar checks a variable in the final Global store or the main
// scenario's locals. A variable that was never defined reads as Undefined.
func assertFinalVar(result *Result, a Assertion) error {
	want, err := expr.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("final_var %s: %w", a.Name, err)
	}

	vars := result.Locals
	if variables.Scope(a.Scope) == variables.ScopeGlobal {
		vars = result.Globals
	}
	got, ok := vars[a.Name]
	if !ok {
		got = expr.Undefined()
	}

	if !got.Equal(want) {
		return &AssertionError{
			Type:     AssertFinalVar,
			Expected: fmt.Sprintf("%s %s = %#v", a.Scope, a.Name, want),
			Actual:   fmt.Sprintf("%#v", got),
		}
	}
	return nil
}
