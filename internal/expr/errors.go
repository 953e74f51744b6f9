package expr

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes expression failures by the stage that produced them.
type ErrorCode string

const (
	// ErrCodeLex indicates the source could not be tokenized.
	ErrCodeLex ErrorCode = "LEX_ERROR"

	// ErrCodeParse indicates the token stream is not a valid expression.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeEval indicates a type mismatch, undefined variable,
	// division by zero or similar run-time failure.
	ErrCodeEval ErrorCode = "EVAL_ERROR"
)

// Error is returned by Parse, ParseTemplate and Eval.
type Error struct {
	Code    ErrorCode
	Message string

	// Pos is the character offset for lex and parse errors, -1 otherwise.
	Pos int
}

// Error returns the bare message. The message text is what ends up in
// last_error and in log entries.
func (e *Error) Error() string {
	return e.Message
}

func lexErrorf(pos int, format string, args ...any) *Error {
	return &Error{Code: ErrCodeLex, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func parseErrorf(pos int, format string, args ...any) *Error {
	return &Error{Code: ErrCodeParse, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func evalErrorf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeEval, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// NewEvalError builds an EVAL_ERROR with the given message. Resolvers use it
// to report missing variables.
func NewEvalError(message string) *Error {
	return &Error{Code: ErrCodeEval, Message: message, Pos: -1}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsLexError reports whether err is a tokenization failure.
func IsLexError(err error) bool { return hasCode(err, ErrCodeLex) }

// IsParseError reports whether err is a syntax failure.
func IsParseError(err error) bool { return hasCode(err, ErrCodeParse) }

// IsEvalError reports whether err is an evaluation failure.
// Uses errors.As to handle wrapped errors.
func IsEvalError(err error) bool { return hasCode(err, ErrCodeEval) }
