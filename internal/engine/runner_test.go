package engine

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellRunner(t *testing.T) ExecRunner {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return ExecRunner{Path: path, Args: []string{"-c"}}
}

func TestExecRunner_Output(t *testing.T) {
	r := shellRunner(t)

	out, err := r.RunPowershell(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := shellRunner(t)

	_, err := r.RunPowershell(context.Background(), "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	r := ExecRunner{Path: "/nonexistent/pwsh"}

	_, err := r.RunPowershell(context.Background(), "Get-Date")
	assert.Error(t, err)
}
