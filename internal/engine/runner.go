package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ActivityRunner performs activities whose effect lives outside the VM.
// The VM only records success or failure; a returned error becomes a
// catchable ACTIVITY_ERROR.
type ActivityRunner interface {
	RunPowershell(ctx context.Context, code string) (string, error)
}

// RunnerFunc adapts a function to ActivityRunner.
type RunnerFunc func(ctx context.Context, code string) (string, error)

// RunPowershell calls f.
func (f RunnerFunc) RunPowershell(ctx context.Context, code string) (string, error) {
	return f(ctx, code)
}

// DefaultPowershellArgs are passed before the script text.
var DefaultPowershellArgs = []string{"-NoProfile", "-NonInteractive", "-Command"}

// ExecRunner runs scripts through a PowerShell executable.
type ExecRunner struct {
	// Path is the executable, e.g. "pwsh" or "powershell.exe".
	Path string

	// Args precede the script. Nil means DefaultPowershellArgs.
	Args []string
}

// RunPowershell runs code and returns its trimmed standard output.
// A non-zero exit is an error carrying standard error.
func (r ExecRunner) RunPowershell(ctx context.Context, code string) (string, error) {
	args := r.Args
	if args == nil {
		args = DefaultPowershellArgs
	}
	args = append(append([]string{}, args...), code)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return strings.TrimSpace(stdout.String()), fmt.Errorf("%s: %w: %s", r.Path, err, msg)
		}
		return strings.TrimSpace(stdout.String()), fmt.Errorf("%s: %w", r.Path, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
