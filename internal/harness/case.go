package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/variables"
)

// DefaultRunID is used when a case does not name one.
const DefaultRunID = "case-run"

// Case defines a conformance case: one project run plus the expectations
// on its outcome.
type Case struct {
	// Name uniquely identifies this case. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this case validates.
	Description string `yaml:"description"`

	// Project is the project file to run. Relative paths are resolved
	// against the case file's directory by LoadCase.
	Project string `yaml:"project"`

	// RunID is the fixed run identifier. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Globals override project Global variables before the run starts.
	// YAML scalars map to Number, Boolean or String.
	Globals map[string]any `yaml:"globals,omitempty"`

	// MaxSteps is the step quota; 0 disables it.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// MaxCallDepth bounds nested scenario calls; 0 keeps the engine
	// default.
	MaxCallDepth int `yaml:"max_call_depth,omitempty"`

	// NodeTrace adds a DEBUG entry per executed node.
	NodeTrace bool `yaml:"node_trace,omitempty"`

	Expect Expect `yaml:"expect"`

	// Assertions validate the run log and final variables.
	Assertions []Assertion `yaml:"assertions"`
}

// Expect is the expected terminal outcome of a run.
type Expect struct {
	// Status is one of completed, stopped or errored.
	Status string `yaml:"status"`

	// Error must be a substring of the error that ended the run. Only
	// meaningful with status errored.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final variables.
type Assertion struct {
	// Type is one of log_contains, log_order, log_count, final_var.
	Type string `yaml:"type"`

	// Entry filters (log_contains, log_count). Empty fields match any
	// entry.
	Level    string `yaml:"level,omitempty"`
	Activity string `yaml:"activity,omitempty"`
	Node     string `yaml:"node,omitempty"`
	Message  string `yaml:"message,omitempty"`

	// Messages is the expected message order (log_order).
	Messages []string `yaml:"messages,omitempty"`

	// Count is the expected number of matching entries (log_count).
	Count int `yaml:"count,omitempty"`

	// Scope, Name and Value describe the expected variable (final_var).
	// A missing value expects Undefined.
	Scope string `yaml:"scope,omitempty"`
	Name  string `yaml:"name,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertLogContains = "log_contains"
	AssertLogOrder    = "log_order"
	AssertLogCount    = "log_count"
	AssertFinalVar    = "final_var"
)

// Expected status values.
const (
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusErrored   = "errored"
)

// LoadCase reads and parses a case YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or is missing required fields.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	c, err := ParseCase(data)
	if err != nil {
		return nil, err
	}

	if c.Project != "" && !filepath.IsAbs(c.Project) {
		c.Project = filepath.Join(filepath.Dir(path), c.Project)
	}
	if _, err := os.Stat(c.Project); err != nil {
		return nil, fmt.Errorf("invalid case: project file not found: %s", c.Project)
	}

	return c, nil
}

// ParseCase decodes a case document without touching the filesystem.
func ParseCase(data []byte) (*Case, error) {
	var c Case
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateCase(&c); err != nil {
		return nil, fmt.Errorf("invalid case: %w", err)
	}
	if c.RunID == "" {
		c.RunID = DefaultRunID
	}
	return &c, nil
}

// validateCase checks that required fields are present and valid.
func validateCase(c *Case) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Description == "" {
		return fmt.Errorf("description is required")
	}
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if c.MaxCallDepth < 0 {
		return fmt.Errorf("max_call_depth must be non-negative")
	}

	switch c.Expect.Status {
	case StatusCompleted, StatusStopped, StatusErrored:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("expect.status: unknown status %q", c.Expect.Status)
	}
	if c.Expect.Error != "" && c.Expect.Status != StatusErrored {
		return fmt.Errorf("expect.error requires status %s", StatusErrored)
	}

	for i := range c.Assertions {
		if err := validateAssertion(i, &c.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Level != "" {
		if _, err := runlog.ParseLevel(a.Level); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}

	switch a.Type {
	case AssertLogContains:
		if a.Level == "" && a.Activity == "" && a.Node == "" && a.Message == "" {
			return fmt.Errorf("assertions[%d]: log_contains needs at least one of level, activity, node, message", index)
		}
	case AssertLogOrder:
		if len(a.Messages) < 2 {
			return fmt.Errorf("assertions[%d]: log_order needs at least two messages", index)
		}
	case AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertFinalVar:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for final_var", index)
		}
		switch variables.Scope(a.Scope) {
		case variables.ScopeGlobal, variables.ScopeScenario:
		default:
			return fmt.Errorf("assertions[%d]: scope must be %s or %s for final_var",
				index, variables.ScopeGlobal, variables.ScopeScenario)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
