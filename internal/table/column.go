package table

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies the element type of a column or scalar.
type Kind int

const (
	Float Kind = iota
	Int
	Bool
	String
	Date
)

var kindNames = map[Kind]string{
	Float:  "float",
	Int:    "int",
	Bool:   "bool",
	String: "string",
	Date:   "date",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Numeric reports whether values of this kind take part in arithmetic.
func (k Kind) Numeric() bool {
	return k == Float || k == Int || k == Bool
}

// DateLayout is the canonical text form of a Date value.
const DateLayout = "2006-01-02"

// Column is an immutable typed vector. Float and Int columns share the
// float64 backing store and use NaN for missing values; Int only changes
// how values are rendered.
type Column struct {
	kind  Kind
	nums  []float64
	bools []bool
	strs  []string
	dates []time.Time
}

// NewFloat wraps v as a float column. The slice must not be modified afterwards.
func NewFloat(v []float64) *Column { return &Column{kind: Float, nums: v} }

// NewInt wraps integral values stored as float64 (NaN = missing).
func NewInt(v []float64) *Column { return &Column{kind: Int, nums: v} }

// NewBool wraps v as a boolean column.
func NewBool(v []bool) *Column { return &Column{kind: Bool, bools: v} }

// NewString wraps v as a string column.
func NewString(v []string) *Column { return &Column{kind: String, strs: v} }

// NewDate wraps v as a calendar date column. Zero times are missing.
func NewDate(v []time.Time) *Column { return &Column{kind: Date, dates: v} }

// Kind returns the element kind.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of elements.
func (c *Column) Len() int {
	switch c.kind {
	case Bool:
		return len(c.bools)
	case String:
		return len(c.strs)
	case Date:
		return len(c.dates)
	default:
		return len(c.nums)
	}
}

// Floats returns the column as float64 values. Numeric columns return their
// backing slice, which callers must treat as read-only. Booleans map to 1/0;
// strings and dates map to NaN.
func (c *Column) Floats() []float64 {
	switch c.kind {
	case Float, Int:
		return c.nums
	case Bool:
		out := make([]float64, len(c.bools))
		for i, b := range c.bools {
			if b {
				out[i] = 1
			}
		}
		return out
	default:
		out := make([]float64, c.Len())
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
}

// Bools returns the column as truth values. Missing numbers are false.
func (c *Column) Bools() []bool {
	switch c.kind {
	case Bool:
		return c.bools
	case Float, Int:
		out := make([]bool, len(c.nums))
		for i, v := range c.nums {
			out[i] = v != 0 && !math.IsNaN(v)
		}
		return out
	case String:
		out := make([]bool, len(c.strs))
		for i, s := range c.strs {
			out[i] = s != ""
		}
		return out
	default:
		out := make([]bool, len(c.dates))
		for i, d := range c.dates {
			out[i] = !d.IsZero()
		}
		return out
	}
}

// Strings returns the display form of every element.
func (c *Column) Strings() []string {
	if c.kind == String {
		return c.strs
	}
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.At(i).String()
	}
	return out
}

// Dates returns the date values; non-date columns yield zero times.
func (c *Column) Dates() []time.Time {
	if c.kind == Date {
		return c.dates
	}
	return make([]time.Time, c.Len())
}

// IsMissing reports whether element i holds no value.
func (c *Column) IsMissing(i int) bool {
	switch c.kind {
	case Float, Int:
		return math.IsNaN(c.nums[i])
	case Date:
		return c.dates[i].IsZero()
	}
	return false
}

// At returns element i as a scalar.
func (c *Column) At(i int) Scalar {
	switch c.kind {
	case Float:
		return FloatScalar(c.nums[i])
	case Int:
		return Scalar{Kind: Int, Num: c.nums[i]}
	case Bool:
		return BoolScalar(c.bools[i])
	case String:
		return StringScalar(c.strs[i])
	default:
		return DateScalar(c.dates[i])
	}
}

// Take gathers the elements at idx into a new column.
func (c *Column) Take(idx []int) *Column {
	out := &Column{kind: c.kind}
	switch c.kind {
	case Float, Int:
		out.nums = make([]float64, len(idx))
		for j, i := range idx {
			out.nums[j] = c.nums[i]
		}
	case Bool:
		out.bools = make([]bool, len(idx))
		for j, i := range idx {
			out.bools[j] = c.bools[i]
		}
	case String:
		out.strs = make([]string, len(idx))
		for j, i := range idx {
			out.strs[j] = c.strs[i]
		}
	case Date:
		out.dates = make([]time.Time, len(idx))
		for j, i := range idx {
			out.dates[j] = c.dates[i]
		}
	}
	return out
}

// Repeat builds a column of length n holding s in every element.
func Repeat(s Scalar, n int) *Column {
	switch s.Kind {
	case Float, Int:
		v := make([]float64, n)
		for i := range v {
			v[i] = s.Num
		}
		return &Column{kind: s.Kind, nums: v}
	case Bool:
		v := make([]bool, n)
		for i := range v {
			v[i] = s.Bool
		}
		return NewBool(v)
	case String:
		v := make([]string, n)
		for i := range v {
			v[i] = s.Str
		}
		return NewString(v)
	default:
		v := make([]time.Time, n)
		for i := range v {
			v[i] = s.Date
		}
		return NewDate(v)
	}
}

// Compare orders elements i and j of the column. Missing values sort last.
func (c *Column) Compare(i, j int) int {
	mi, mj := c.IsMissing(i), c.IsMissing(j)
	switch {
	case mi && mj:
		return 0
	case mi:
		return 1
	case mj:
		return -1
	}
	switch c.kind {
	case Float, Int:
		return cmpFloat(c.nums[i], c.nums[j])
	case Bool:
		return cmpFloat(b2f(c.bools[i]), b2f(c.bools[j]))
	case String:
		return cmpString(c.strs[i], c.strs[j])
	default:
		return c.dates[i].Compare(c.dates[j])
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
