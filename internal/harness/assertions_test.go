package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

func sampleTrace() []TraceEntry {
	return []TraceEntry{
		{Seq: 1, Node: "s", Level: "INFO", Activity: "START", Message: "Starting scenario: Main"},
		{Seq: 2, Node: "a", Level: "WARN", Activity: "LOG", Message: "first"},
		{Seq: 3, Node: "b", Level: "INFO", Activity: "LOG", Message: "second"},
		{Seq: 4, Node: "a", Level: "WARN", Activity: "LOG", Message: "first"},
		{Seq: 5, Node: "e", Level: "INFO", Activity: "END", Message: "Ending scenario: Main"},
	}
}

func TestAssertLogContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertLogContains(trace, Assertion{Message: "second"}))
	assert.NoError(t, assertLogContains(trace, Assertion{Level: "Warning", Node: "a"}))
	assert.NoError(t, assertLogContains(trace, Assertion{Level: "WARN", Activity: "LOG", Message: "first"}))

	err := assertLogContains(trace, Assertion{Level: "Error", Message: "first"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertLogContains, ae.Type)
	assert.Equal(t, `level=Error message="first"`, ae.Expected)
	assert.Equal(t, "not found in trace", ae.Actual)
	assert.Len(t, ae.Trace, 5)
}

func TestAssertLogOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertLogOrder(trace, Assertion{Messages: []string{"first", "second"}}))
	assert.NoError(t, assertLogOrder(trace, Assertion{Messages: []string{"second", "first"}}))
	assert.NoError(t, assertLogOrder(trace, Assertion{Messages: []string{"first", "first", "Ending scenario: Main"}}))

	err := assertLogOrder(trace, Assertion{Messages: []string{"Ending scenario: Main", "second"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, `"second" not found after "Ending scenario: Main"`, ae.Actual)

	err = assertLogOrder(trace, Assertion{Messages: []string{"third", "first"}})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, `missing message "third"`, ae.Actual)
}

func TestAssertLogCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertLogCount(trace, Assertion{Activity: "LOG", Count: 3}))
	assert.NoError(t, assertLogCount(trace, Assertion{Message: "first", Count: 2}))
	assert.NoError(t, assertLogCount(trace, Assertion{Level: "Debug", Count: 0}))
	assert.NoError(t, assertLogCount(trace, Assertion{Count: 5}))

	err := assertLogCount(trace, Assertion{Node: "a", Count: 1})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 entries matching node=a", ae.Expected)
	assert.Equal(t, "2 entries", ae.Actual)
}

func TestAssertFinalVar(t *testing.T) {
	result := NewResult()
	result.Globals = map[string]expr.Value{"g": expr.String("hi")}
	result.Locals = map[string]expr.Value{"n": expr.Number(4), "ok": expr.Bool(true)}

	assert.NoError(t, assertFinalVar(result, Assertion{Scope: "Global", Name: "g", Value: "hi"}))
	assert.NoError(t, assertFinalVar(result, Assertion{Scope: "Scenario", Name: "n", Value: 4}))
	assert.NoError(t, assertFinalVar(result, Assertion{Scope: "Scenario", Name: "n", Value: 4.0}))
	assert.NoError(t, assertFinalVar(result, Assertion{Scope: "Scenario", Name: "ok", Value: true}))
	assert.NoError(t, assertFinalVar(result, Assertion{Scope: "Scenario", Name: "missing"}))

	err := assertFinalVar(result, Assertion{Scope: "Global", Name: "n", Value: 4})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Global n = Number(4)", ae.Expected)
	assert.Equal(t, "Undefined", ae.Actual)

	err = assertFinalVar(result, Assertion{Scope: "Scenario", Name: "n", Value: "4"})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Number(4)", ae.Actual)

	err = assertFinalVar(result, Assertion{Scope: "Scenario", Name: "n", Value: []any{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "final_var n")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertLogContains, Message: "second"},
		{Type: AssertLogCount, Activity: "LOG", Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "assertions[1]: Assertion failed: log_count")
	assert.Equal(t, `assertions[2]: unknown assertion type "bogus"`, failures[1])
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{
		Type:     AssertLogCount,
		Expected: "1 entries matching activity=LOG",
		Actual:   "0 entries",
		Trace:    []TraceEntry{{Seq: 1, Level: "INFO", Activity: "START", Message: "go"}},
	}

	want := "Assertion failed: log_count\n" +
		"  Expected: 1 entries matching activity=LOG\n" +
		"  Actual: 0 entries\n" +
		"\nFull trace:\n" +
		"  [1] INFO  [START] go\n"
	assert.Equal(t, want, err.Error())
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("nope")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"nope"}, r.Errors)
}
