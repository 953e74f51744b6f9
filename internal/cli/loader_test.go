package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

func TestLoadProject_Formats(t *testing.T) {
	tests := []struct {
		path  string
		name  string
		nodes int
	}{
		{"testdata/hello.yaml", "hello", 4},
		{"testdata/hello.rpa", "hello-rpa", 3},
		{"testdata/hello.cue", "hello-cue", 4},
	}
	for _, tt := range tests {
		t.Run(filepath.Ext(tt.path), func(t *testing.T) {
			p, err := LoadProject(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, "main", p.MainScenario.ID)
			assert.Len(t, p.MainScenario.Nodes, tt.nodes)
		})
	}
}

func TestLoadProject_YAMLVariables(t *testing.T) {
	p, err := LoadProject("testdata/hello.yaml")
	require.NoError(t, err)
	require.Len(t, p.Variables, 1)
	assert.Equal(t, "count", p.Variables[0].Name)
	assert.Equal(t, expr.Number(3), p.Variables[0].Value)
}

func TestLoadProject_CUELoop(t *testing.T) {
	p, err := LoadProject("testdata/hello.cue")
	require.NoError(t, err)

	node, ok := p.MainScenario.Node("loop")
	require.True(t, ok)
	assert.Equal(t, graph.Loop{Start: 1, End: 3, Step: 1, Index: "i"}, node.Activity)
	assert.Equal(t, graph.BranchLoopBody, p.MainScenario.Connections[1].BranchType)
}

func TestLoadProject_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name string
		path string
		code string
	}{
		{"not found", filepath.Join(dir, "missing.yaml"), ErrCodeNotFound},
		{"extension", write("project.txt", "name: x"), ErrCodeFormat},
		{"bad json", write("bad.json", "{"), ErrCodeParseFailed},
		{"bad yaml", write("bad.yaml", "name: [unclosed"), ErrCodeParseFailed},
		{"bad cue", write("bad.cue", "name: \"a\" & \"b\""), ErrCodeParseFailed},
		{"incomplete cue", write("open.cue", "name: string"), ErrCodeParseFailed},
		{"not an object", write("list.json", "[1, 2]"), ErrCodeDecode},
		{"unknown activity", write("act.yaml", `
name: x
main_scenario:
  id: main
  nodes:
    - {id: s, activity: {type: Teleport}}
`), ErrCodeDecode},
		{"struct check", write("level.yaml", `
name: x
main_scenario:
  id: main
  nodes:
    - {id: s, activity: {type: Log, level: Loud, message: "1"}}
`), ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProject(tt.path)
			require.Error(t, err)

			var le *LoadError
			require.True(t, errors.As(err, &le), "want *LoadError, got %T", err)
			assert.Equal(t, tt.code, le.Code)
			assert.Equal(t, tt.code, loadErrorCode(err))
		})
	}
}

func TestLoadError_Format(t *testing.T) {
	err := &LoadError{Code: ErrCodeNotFound, Path: "p.yaml", Message: "project file not found"}
	assert.Equal(t, "p.yaml: L002: project file not found", err.Error())

	err = &LoadError{Code: ErrCodeGeneric, Message: "boom"}
	assert.Equal(t, "L001: boom", err.Error())
	assert.Equal(t, ErrCodeGeneric, loadErrorCode(errors.New("plain")))
}
