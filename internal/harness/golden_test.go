package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"total_default", "divzero_unhandled"} {
		t.Run(name, func(t *testing.T) {
			c, err := LoadCase("testdata/cases/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, c)
			require.NoError(t, err)
			assert.True(t, result.Pass, "%v", result.Errors)
		})
	}
}

func TestTraceSnapshot_Marshal(t *testing.T) {
	result := NewResult()
	result.RunID = "r1"
	result.Status = StatusErrored
	result.Error = "EVAL_ERROR: boom"
	result.Trace = []TraceEntry{
		{Seq: 1, Level: "INFO", Activity: "START", Message: "Starting scenario: main"},
	}
	result.Globals = map[string]expr.Value{"b": expr.Bool(true), "a": expr.String("x")}
	result.Locals = map[string]expr.Value{"u": expr.Undefined()}

	snap := NewTraceSnapshot("demo", result)
	data, err := snap.Marshal()
	require.NoError(t, err)

	want := `{"case":"demo","error":"EVAL_ERROR: boom","run_id":"r1","status":"errored",` +
		`"trace":[{"activity":"START","level":"INFO","message":"Starting scenario: main","seq":1}],` +
		`"variables":{"global":{"a":"String(\"x\")","b":"Boolean(true)"},"scenario":{"u":"Undefined"}}}` + "\n"
	assert.Equal(t, want, string(data))
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	c, err := LoadCase("testdata/cases/total_default.yaml")
	require.NoError(t, err)

	first, err := Run(c)
	require.NoError(t, err)
	second, err := Run(c)
	require.NoError(t, err)

	a := NewTraceSnapshot(c.Name, first)
	b := NewTraceSnapshot(c.Name, second)
	da, err := a.Marshal()
	require.NoError(t, err)
	db, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
}
