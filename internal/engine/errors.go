package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Run when the run ended because a stop was
// requested, either through a Stop command, the shared stop control or
// context cancellation.
var ErrStopped = errors.New("execution stopped by user")

// ErrAlreadyRan is returned when Run is called a second time on the same
// Machine. Build a new Machine for every run.
var ErrAlreadyRan = errors.New("machine has already run")

// RuntimeError represents an error raised while executing a program.
//
// Runtime errors include:
//   - Evaluation failures: type mismatches, undefined variables, division by zero
//   - Activity failures: an external runner reported an error
//   - Stack overflow: scenario calls nested past the configured depth
//   - Step quota: the run executed more instructions than allowed
//
// Only evaluation and activity failures can be caught by a TryCatch or an
// error edge. The others always end the run.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description. It is what ends up in
	// last_error when the error is caught.
	Message string

	// ScenarioID and NodeID locate the failing instruction.
	ScenarioID string
	NodeID     string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeEval indicates an expression could not be evaluated.
	ErrCodeEval RuntimeErrorCode = "EVAL_ERROR"

	// ErrCodeActivity indicates an external activity failed.
	ErrCodeActivity RuntimeErrorCode = "ACTIVITY_ERROR"

	// ErrCodeStackOverflow indicates the call depth limit was reached.
	ErrCodeStackOverflow RuntimeErrorCode = "STACK_OVERFLOW"

	// ErrCodeStepsExceeded indicates the run exceeded max steps.
	ErrCodeStepsExceeded RuntimeErrorCode = "STEPS_EXCEEDED"

	// ErrCodeInvalidProgram indicates the program jumped somewhere it
	// should not. A verified program never produces it.
	ErrCodeInvalidProgram RuntimeErrorCode = "INVALID_PROGRAM"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.ScenarioID != "" && e.NodeID != "" {
		return fmt.Sprintf("%s: %s (scenario=%s, node=%s)", e.Code, e.Message, e.ScenarioID, e.NodeID)
	}
	if e.ScenarioID != "" {
		return fmt.Sprintf("%s: %s (scenario=%s)", e.Code, e.Message, e.ScenarioID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// Catchable reports whether a TryCatch handler may intercept the error.
func (e *RuntimeError) Catchable() bool {
	return e.Code == ErrCodeEval || e.Code == ErrCodeActivity
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsEvalError returns true if the error is an expression evaluation error.
// Uses errors.As to handle wrapped errors.
func IsEvalError(err error) bool { return hasCode(err, ErrCodeEval) }

// IsActivityError returns true if the error came from an external activity.
func IsActivityError(err error) bool { return hasCode(err, ErrCodeActivity) }

// IsStackOverflow returns true if the error is a call depth overflow.
func IsStackOverflow(err error) bool { return hasCode(err, ErrCodeStackOverflow) }

// IsStepsExceeded returns true if the error is a step quota error.
func IsStepsExceeded(err error) bool { return hasCode(err, ErrCodeStepsExceeded) }

// IsCatchable returns true if err is a RuntimeError that error handlers may
// intercept.
func IsCatchable(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Catchable()
}

// NewStackOverflowError creates a RuntimeError for a call past maxDepth.
func NewStackOverflowError(scenarioID string, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeStackOverflow,
		Message:    fmt.Sprintf("Maximum scenario call depth exceeded (%d)", maxDepth),
		ScenarioID: scenarioID,
		Details: map[string]string{
			"max_call_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}

// NewStepsExceededError creates a RuntimeError for an exhausted step quota.
func NewStepsExceededError(steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStepsExceeded,
		Message: fmt.Sprintf("run exceeded max steps (%d > %d)", steps, maxSteps),
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}

// errorMessage is the bare message used for last_error and log lines.
func errorMessage(err error) string {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
