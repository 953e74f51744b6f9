package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidProject(t *testing.T) {
	out, _, err := execCLI(t, "validate", "testdata/hello.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, `✓ Project "hello" is valid`)
}

func TestValidate_MissingEnd(t *testing.T) {
	out, _, err := execCLI(t, "validate", "testdata/missing_end.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, isReported(err))
	assert.Contains(t, out, "ERROR [E002]")
	assert.NotContains(t, out, "is valid")
}

func TestValidate_JSON(t *testing.T) {
	out, _, err := execCLI(t, "--format", "json", "validate", "testdata/missing_end.yaml")
	require.Error(t, err)

	var payload ValidationOutput
	resp := decodeResponse(t, out, &payload)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, payload.Valid)
	assert.Equal(t, "broken", payload.Project)
	assert.Equal(t, 1, payload.Scenarios)
	require.NotEmpty(t, payload.Errors)
	assert.Equal(t, "E002", payload.Errors[0].Code)
	assert.NotNil(t, payload.Warnings)
}

func TestValidate_JSONValid(t *testing.T) {
	out, _, err := execCLI(t, "--format", "json", "validate", "testdata/hello.cue")
	require.NoError(t, err)

	var payload ValidationOutput
	decodeResponse(t, out, &payload)
	assert.True(t, payload.Valid)
	assert.Empty(t, payload.Errors)
}

func TestValidate_LoadError(t *testing.T) {
	out, _, err := execCLI(t, "--format", "json", "validate", "testdata/none.rpa")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestValidate_RequiresArg(t *testing.T) {
	_, _, err := execCLI(t, "validate")
	require.Error(t, err)
}
