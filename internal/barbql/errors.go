package barbql

import (
	"fmt"
	"strings"
)

// ════════════════════════════════════════════════════════════════════
// Parse Error
// ════════════════════════════════════════════════════════════════════

// ParseError captures parsing errors with position context.
type ParseError struct {
	Position int
	Line     int
	Column   int
	Message  string
	Hint     string // optional suggestion
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error at line %d, col %d: %s", e.Line, e.Column, e.Message)
	if e.Hint != "" {
		msg += " (hint: " + e.Hint + ")"
	}
	return msg
}

// ════════════════════════════════════════════════════════════════════
// Evaluation Error
// ════════════════════════════════════════════════════════════════════

// ErrorKind classifies an evaluation failure.
type ErrorKind string

const (
	ExpressionError ErrorKind = "ExpressionError"
	UnknownFunction ErrorKind = "UnknownFunction"
	TypeError       ErrorKind = "TypeError"
)

// EvalError is returned when a well-formed expression cannot be evaluated
// against a table: unknown column, unknown function, wrong arity or an
// operand of the wrong type.
type EvalError struct {
	Kind    ErrorKind
	Message string
}

func (e *EvalError) Error() string { return e.Message }

func evalErrorf(kind ErrorKind, format string, args ...any) *EvalError {
	return &EvalError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ════════════════════════════════════════════════════════════════════
// Validation Error
// ════════════════════════════════════════════════════════════════════

// Finding is one problem reported by the pre-validator.
type Finding struct {
	Step       string `json:"step"`
	Expression string `json:"expression"`
	Message    string `json:"error"`
	Hint       string `json:"hint,omitempty"`
}

// ValidationError bundles every finding of one Validate call.
type ValidationError struct {
	Findings []Finding
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.Message
	}
	return fmt.Sprintf("%d expression error(s): %s", len(e.Findings), strings.Join(msgs, "; "))
}
