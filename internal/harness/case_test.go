package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCase_ResolvesProjectPath(t *testing.T) {
	c, err := LoadCase("testdata/cases/total_default.yaml")
	require.NoError(t, err)

	assert.Equal(t, "total_default", c.Name)
	assert.Equal(t, "case-total", c.RunID)
	assert.Equal(t, filepath.Join("testdata", "projects", "total.yaml"), c.Project)
	assert.Equal(t, StatusCompleted, c.Expect.Status)
	assert.Len(t, c.Assertions, 4)
}

func TestLoadCase_DefaultRunID(t *testing.T) {
	c, err := LoadCase("testdata/cases/total_override.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultRunID, c.RunID)
	assert.Equal(t, 21, c.Globals["count"])
}

func TestLoadCase_MissingFile(t *testing.T) {
	_, err := LoadCase("testdata/cases/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read case file")
}

func TestLoadCase_MissingProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "case.yaml")
	doc := "name: x\ndescription: d\nproject: missing.yaml\nexpect: {status: completed}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadCase(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project file not found")
}

func TestParseCase_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  "description: d\nproject: p.yaml\nexpect: {status: completed}\n",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: x\nproject: p.yaml\nexpect: {status: completed}\n",
			want: "description is required",
		},
		{
			name: "missing project",
			doc:  "name: x\ndescription: d\nexpect: {status: completed}\n",
			want: "project is required",
		},
		{
			name: "missing status",
			doc:  "name: x\ndescription: d\nproject: p.yaml\n",
			want: "expect.status is required",
		},
		{
			name: "unknown status",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: done}\n",
			want: `unknown status "done"`,
		},
		{
			name: "error without errored",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed, error: boom}\n",
			want: "expect.error requires status errored",
		},
		{
			name: "negative max steps",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nmax_steps: -1\nexpect: {status: completed}\n",
			want: "max_steps must be non-negative",
		},
		{
			name: "unknown assertion",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: trace_contains}]\n",
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "empty log_contains",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: log_contains}]\n",
			want: "log_contains needs at least one of",
		},
		{
			name: "short log_order",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: log_order, messages: [a]}]\n",
			want: "log_order needs at least two messages",
		},
		{
			name: "bad level",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: log_count, level: Loud}]\n",
			want: "assertions[0]",
		},
		{
			name: "final_var without scope",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: final_var, name: v}]\n",
			want: "scope must be Global or Scenario",
		},
		{
			name: "final_var without name",
			doc:  "name: x\ndescription: d\nproject: p.yaml\nexpect: {status: completed}\nassertions: [{type: final_var, scope: Global}]\n",
			want: "name is required for final_var",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCase([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
