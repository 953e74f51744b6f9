package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// execCLI runs the root command with args and returns stdout, stderr and
// the command error.
func execCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd, opts := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if opts.closeLog != nil {
		require.NoError(t, opts.closeLog())
	}
	return stdout.String(), stderr.String(), err
}

// decodeResponse parses a JSON CLIResponse and its data payload.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
		RunID  string          `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output:\n%s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error, RunID: raw.RunID}
}
