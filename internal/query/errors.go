package query

import (
	"errors"
	"fmt"

	"github.com/seenimoa/barb/internal/barbql"
)

// Error types reported in Error.Type.
const (
	TypeValidation      = "ValidationError"
	TypeParse           = "ParseError"
	TypeExpression      = string(barbql.ExpressionError)
	TypeUnknownFunction = string(barbql.UnknownFunction)
	TypeType            = string(barbql.TypeError)
	TypeInternal        = "InternalError"
)

// Error is the structured failure of a query. Step names the pipeline
// stage or validation check that produced it and Expression echoes the
// offending fragment, so the error locates itself without a trace.
type Error struct {
	Message    string           `json:"error"                yaml:"error"`
	Type       string           `json:"error_type"           yaml:"error_type"`
	Step       string           `json:"step"                 yaml:"step"`
	Expression string           `json:"expression"           yaml:"expression"`
	Hint       string           `json:"hint,omitempty"       yaml:"hint,omitempty"`
	Findings   []barbql.Finding `json:"errors,omitempty"     yaml:"errors,omitempty"`
}

func (e *Error) Error() string {
	if e.Step == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Step, e.Message)
}

func validationError(step, expr, format string, args ...any) *Error {
	return &Error{Type: TypeValidation, Step: step, Expression: expr, Message: fmt.Sprintf(format, args...)}
}

// wrapExpr attaches a stage and expression to an evaluator failure.
func wrapExpr(err error, step, expr string) *Error {
	out := AsError(err)
	if out.Step == "" {
		out.Step = step
	}
	if out.Expression == "" {
		out.Expression = expr
	}
	return out
}

// AsError converts any error into an *Error. Errors the interpreter does
// not recognise become InternalError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	var ve *barbql.ValidationError
	if errors.As(err, &ve) {
		out := &Error{Type: TypeValidation, Step: "validate", Message: ve.Error(), Findings: ve.Findings}
		if len(ve.Findings) > 0 {
			first := ve.Findings[0]
			out.Step, out.Expression, out.Hint = first.Step, first.Expression, first.Hint
		}
		return out
	}
	var pe *barbql.ParseError
	if errors.As(err, &pe) {
		return &Error{Type: TypeParse, Message: pe.Message, Hint: pe.Hint}
	}
	var ee *barbql.EvalError
	if errors.As(err, &ee) {
		return &Error{Type: string(ee.Kind), Message: ee.Message}
	}
	return &Error{Type: TypeInternal, Message: err.Error()}
}
