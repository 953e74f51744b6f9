package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Compile error codes (C001-C099)
const (
	ErrDanglingEdge      = "C001" // connection references a missing node
	ErrUnknownScenario   = "C002" // CallScenario target does not exist
	ErrMissingStart      = "C003" // scenario has no Start node
	ErrOutsideLoop       = "C004" // Break or Continue outside any loop
	ErrBadExpression     = "C005" // expression or template does not parse
	ErrDeadEnd           = "C006" // top-level path ends without reaching End
	ErrUnresolvedTarget  = "C007" // a jump target was never bound
	ErrInvalidActivity   = "C008" // activity configuration is unusable
	ErrJumpIntoTryRegion = "C009" // edge enters a try branch from outside it
	ErrJumpIntoLoopBody  = "C010" // edge enters a loop body from outside it
)

// CompileError is one reason a project could not be compiled.
type CompileError struct {
	Code       string `json:"code"`
	ScenarioID string `json:"scenario_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("[%s] scenario %s, node %s: %s", e.Code, e.ScenarioID, e.NodeID, e.Message)
	case e.ScenarioID != "":
		return fmt.Sprintf("[%s] scenario %s: %s", e.Code, e.ScenarioID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Errors collects every CompileError found in one Compile call.
// Compilation is all-or-nothing: when Errors is returned there is no
// program.
type Errors struct {
	Errs []*CompileError
}

// Error implements the error interface.
func (e *Errors) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	lines := make([]string, 0, len(e.Errs)+1)
	lines = append(lines, fmt.Sprintf("%d compile errors:", len(e.Errs)))
	for _, err := range e.Errs {
		lines = append(lines, "  "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *Errors) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err
	}
	return out
}

// IsCompileError reports whether err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// HasCode reports whether err contains a CompileError with code.
func HasCode(err error, code string) bool {
	var all *Errors
	if errors.As(err, &all) {
		for _, e := range all.Errs {
			if e.Code == code {
				return true
			}
		}
		return false
	}
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == code
}
