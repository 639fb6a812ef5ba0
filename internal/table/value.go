package table

import (
	"math"
	"strconv"
	"time"
)

// Scalar is a single typed value.
type Scalar struct {
	Kind Kind
	Num  float64
	Bool bool
	Str  string
	Date time.Time
}

// FloatScalar creates a float scalar.
func FloatScalar(v float64) Scalar { return Scalar{Kind: Float, Num: v} }

// IntScalar creates an integer scalar.
func IntScalar(v int64) Scalar { return Scalar{Kind: Int, Num: float64(v)} }

// BoolScalar creates a boolean scalar.
func BoolScalar(v bool) Scalar { return Scalar{Kind: Bool, Bool: v} }

// StringScalar creates a string scalar.
func StringScalar(v string) Scalar { return Scalar{Kind: String, Str: v} }

// DateScalar creates a date scalar truncated to the calendar day.
func DateScalar(v time.Time) Scalar {
	if !v.IsZero() {
		v = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
	}
	return Scalar{Kind: Date, Date: v}
}

// Float returns the numeric form of s (booleans as 1/0, others NaN).
func (s Scalar) Float() float64 {
	switch s.Kind {
	case Float, Int:
		return s.Num
	case Bool:
		return b2f(s.Bool)
	}
	return math.NaN()
}

// Truthy returns the boolean form of s.
func (s Scalar) Truthy() bool {
	switch s.Kind {
	case Bool:
		return s.Bool
	case Float, Int:
		return s.Num != 0 && !math.IsNaN(s.Num)
	case String:
		return s.Str != ""
	}
	return !s.Date.IsZero()
}

// IsMissing reports whether s is NaN or a zero date.
func (s Scalar) IsMissing() bool {
	switch s.Kind {
	case Float, Int:
		return math.IsNaN(s.Num)
	case Date:
		return s.Date.IsZero()
	}
	return false
}

// Interface returns the natively typed Go value for serialisation:
// int64, float64, bool, string, or nil when missing.
func (s Scalar) Interface() any {
	if s.IsMissing() {
		return nil
	}
	switch s.Kind {
	case Int:
		return int64(s.Num)
	case Float:
		if math.IsInf(s.Num, 0) {
			return nil
		}
		return s.Num
	case Bool:
		return s.Bool
	case String:
		return s.Str
	}
	return s.Date.Format(DateLayout)
}

func (s Scalar) String() string {
	switch s.Kind {
	case Float:
		return strconv.FormatFloat(s.Num, 'g', -1, 64)
	case Int:
		if math.IsNaN(s.Num) {
			return "NaN"
		}
		return strconv.FormatInt(int64(s.Num), 10)
	case Bool:
		return strconv.FormatBool(s.Bool)
	case String:
		return s.Str
	}
	if s.Date.IsZero() {
		return ""
	}
	return s.Date.Format(DateLayout)
}

// ValueType identifies the shape of an evaluation result.
type ValueType int

const (
	ScalarValue ValueType = iota
	ColumnValue
	ListValue
)

// Value is the result of evaluating an expression: a scalar, a column with
// one element per table row, or a list literal.
type Value struct {
	Type   ValueType
	Scalar Scalar
	Column *Column
	List   []Value
}

// ScalarOf wraps a scalar.
func ScalarOf(s Scalar) Value { return Value{Type: ScalarValue, Scalar: s} }

// ColumnOf wraps a column.
func ColumnOf(c *Column) Value { return Value{Type: ColumnValue, Column: c} }

// ListOf wraps a list of values.
func ListOf(vs []Value) Value { return Value{Type: ListValue, List: vs} }

// Floats wraps a float slice as a column value.
func Floats(v []float64) Value { return ColumnOf(NewFloat(v)) }

// Bools wraps a bool slice as a column value.
func Bools(v []bool) Value { return ColumnOf(NewBool(v)) }

// IsColumn reports whether v holds a column.
func (v Value) IsColumn() bool { return v.Type == ColumnValue }

// TypeName describes v for error messages.
func (v Value) TypeName() string {
	switch v.Type {
	case ColumnValue:
		return v.Column.Kind().String() + " column"
	case ListValue:
		return "list"
	}
	return v.Scalar.Kind.String()
}

// Broadcast returns v as a column of length n. Scalars are repeated; lists
// cannot be broadcast and yield nil.
func (v Value) Broadcast(n int) *Column {
	switch v.Type {
	case ColumnValue:
		return v.Column
	case ScalarValue:
		return Repeat(v.Scalar, n)
	}
	return nil
}
