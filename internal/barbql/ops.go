package barbql

import (
	"math"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/table"
)

// ════════════════════════════════════════════════════════════════════
// Column-wise operators
//
// Every operator accepts scalars and columns in any combination. Scalars
// are broadcast to the table length; two scalars yield a scalar.
// ════════════════════════════════════════════════════════════════════

func kindOf(v table.Value) table.Kind {
	if v.Type == table.ColumnValue {
		return v.Column.Kind()
	}
	return v.Scalar.Kind
}

func bothScalar(a, b table.Value) bool {
	return a.Type == table.ScalarValue && b.Type == table.ScalarValue
}

// at returns element i of a column, or the scalar itself.
func at(v table.Value, i int) table.Scalar {
	if v.Type == table.ColumnValue {
		return v.Column.At(i)
	}
	return v.Scalar
}

func integral(k table.Kind) bool {
	return k == table.Int || k == table.Bool
}

// ────────────────────────────────────────────────────────────────────
// Arithmetic
// ────────────────────────────────────────────────────────────────────

var arithmeticFns = map[string]func(x, y float64) float64{
	"+": func(x, y float64) float64 { return x + y },
	"-": func(x, y float64) float64 { return x - y },
	"*": func(x, y float64) float64 { return x * y },
	"/": func(x, y float64) float64 { return x / y },
}

// arithmetic applies + - * /. Integer operands stay integers except under
// division; division by zero yields ±Inf or NaN.
func arithmetic(op string, a, b table.Value, n int) (table.Value, error) {
	if a.Type == table.ListValue || b.Type == table.ListValue {
		return table.Value{}, operandError(op, a, b)
	}
	ka, kb := kindOf(a), kindOf(b)

	if op == "+" && ka == table.String && kb == table.String {
		return concat(a, b, n), nil
	}
	if !ka.Numeric() || !kb.Numeric() {
		return table.Value{}, operandError(op, a, b)
	}

	kind := table.Float
	if op != "/" && integral(ka) && integral(kb) {
		kind = table.Int
	}
	fn := arithmeticFns[op]

	if bothScalar(a, b) {
		return table.ScalarOf(table.Scalar{Kind: kind, Num: fn(a.Scalar.Float(), b.Scalar.Float())}), nil
	}

	xs, ys := a.Broadcast(n).Floats(), b.Broadcast(n).Floats()
	out := make([]float64, n)
	for i := range out {
		out[i] = fn(xs[i], ys[i])
	}
	if kind == table.Int {
		return table.ColumnOf(table.NewInt(out)), nil
	}
	return table.Floats(out), nil
}

func concat(a, b table.Value, n int) table.Value {
	if bothScalar(a, b) {
		return table.ScalarOf(table.StringScalar(a.Scalar.Str + b.Scalar.Str))
	}
	xs, ys := a.Broadcast(n).Strings(), b.Broadcast(n).Strings()
	out := make([]string, n)
	for i := range out {
		out[i] = xs[i] + ys[i]
	}
	return table.ColumnOf(table.NewString(out))
}

func operandError(op string, a, b table.Value) error {
	return evalErrorf(TypeError, "Unsupported operand types for %s: %s and %s", op, a.TypeName(), b.TypeName())
}

func negate(v table.Value) (table.Value, error) {
	k := kindOf(v)
	if v.Type == table.ListValue || !k.Numeric() {
		return table.Value{}, evalErrorf(TypeError, "Bad operand type for unary -: %s", v.TypeName())
	}
	if k == table.Bool {
		k = table.Int
	}
	if v.Type == table.ScalarValue {
		return table.ScalarOf(table.Scalar{Kind: k, Num: -v.Scalar.Float()}), nil
	}
	xs := v.Column.Floats()
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = -x
	}
	if k == table.Int {
		return table.ColumnOf(table.NewInt(out)), nil
	}
	return table.Floats(out), nil
}

// ────────────────────────────────────────────────────────────────────
// Comparison
// ────────────────────────────────────────────────────────────────────

// holds reports whether a three-way comparison result satisfies op.
func holds(op string, c int) bool {
	switch op {
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case "==":
		return c == 0
	}
	return c != 0
}

func compareFloats(op string, x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return op == "!="
	}
	switch {
	case x < y:
		return holds(op, -1)
	case x > y:
		return holds(op, 1)
	}
	return holds(op, 0)
}

func compareScalars(op string, x, y table.Scalar) bool {
	if x.IsMissing() || y.IsMissing() {
		return op == "!="
	}
	if x.Kind == table.String {
		return holds(op, strings.Compare(x.Str, y.Str))
	}
	return holds(op, x.Date.Compare(y.Date))
}

// compare applies one comparison operator. Numbers compare with numbers,
// strings with strings and dates with dates (or date strings). Equality
// between other kinds is simply false; ordering them is a type error.
func compare(op string, a, b table.Value, n int) (table.Value, error) {
	switch op {
	case "in", "not in":
		return membership(op == "not in", a, b, n)
	case ">", "<", ">=", "<=", "==", "!=":
	default:
		return table.Value{}, evalErrorf(ExpressionError, "Unsupported comparison: %s", op)
	}
	if a.Type == table.ListValue || b.Type == table.ListValue {
		return table.Value{}, evalErrorf(TypeError, "Cannot use %s with a list; use 'in' for membership", op)
	}

	a, b = coerceDates(a, b)
	ka, kb := kindOf(a), kindOf(b)

	switch {
	case ka.Numeric() && kb.Numeric():
		if bothScalar(a, b) {
			return table.ScalarOf(table.BoolScalar(compareFloats(op, a.Scalar.Float(), b.Scalar.Float()))), nil
		}
		xs, ys := a.Broadcast(n).Floats(), b.Broadcast(n).Floats()
		out := make([]bool, n)
		for i := range out {
			out[i] = compareFloats(op, xs[i], ys[i])
		}
		return table.Bools(out), nil

	case ka == kb:
		return elementwise(a, b, n, func(x, y table.Scalar) bool { return compareScalars(op, x, y) }), nil

	case op == "==" || op == "!=":
		constant := op == "!="
		return elementwise(a, b, n, func(table.Scalar, table.Scalar) bool { return constant }), nil
	}
	return table.Value{}, evalErrorf(TypeError, "Cannot compare %s with %s using %s", a.TypeName(), b.TypeName(), op)
}

// coerceDates turns a string scalar compared against a date into a date,
// so that date() >= '2024-03-01' works.
func coerceDates(a, b table.Value) (table.Value, table.Value) {
	ka, kb := kindOf(a), kindOf(b)
	if ka == table.Date && kb == table.String && b.Type == table.ScalarValue {
		if d, err := time.Parse(table.DateLayout, b.Scalar.Str); err == nil {
			b = table.ScalarOf(table.DateScalar(d))
		}
	}
	if kb == table.Date && ka == table.String && a.Type == table.ScalarValue {
		if d, err := time.Parse(table.DateLayout, a.Scalar.Str); err == nil {
			a = table.ScalarOf(table.DateScalar(d))
		}
	}
	return a, b
}

// elementwise applies fn to each pair of elements and returns a boolean
// scalar or column.
func elementwise(a, b table.Value, n int, fn func(x, y table.Scalar) bool) table.Value {
	if bothScalar(a, b) {
		return table.ScalarOf(table.BoolScalar(fn(a.Scalar, b.Scalar)))
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = fn(at(a, i), at(b, i))
	}
	return table.Bools(out)
}

// membership implements x in [..] and x not in [..].
func membership(negate bool, a, b table.Value, n int) (table.Value, error) {
	op := "in"
	if negate {
		op = "not in"
	}
	if b.Type != table.ListValue {
		return table.Value{}, evalErrorf(TypeError, "'%s' requires a list on the right, got %s", op, b.TypeName())
	}
	if a.Type == table.ListValue {
		return table.Value{}, evalErrorf(TypeError, "'%s' requires a column or value on the left, got list", op)
	}
	contains := func(x, _ table.Scalar) bool {
		for _, item := range b.List {
			if scalarsEqual(x, item.Scalar) {
				return !negate
			}
		}
		return negate
	}
	return elementwise(a, table.ScalarOf(table.Scalar{}), n, contains), nil
}

func scalarsEqual(x, y table.Scalar) bool {
	xv, yv := coerceDates(table.ScalarOf(x), table.ScalarOf(y))
	x, y = xv.Scalar, yv.Scalar
	switch {
	case x.Kind.Numeric() && y.Kind.Numeric():
		return compareFloats("==", x.Float(), y.Float())
	case x.Kind == y.Kind:
		return compareScalars("==", x, y)
	}
	return false
}

// ────────────────────────────────────────────────────────────────────
// Boolean logic
// ────────────────────────────────────────────────────────────────────

// logical combines operands element-wise with and / or. Every operand is
// evaluated; nothing short-circuits.
func logical(op string, operands []table.Value, n int) (table.Value, error) {
	allScalar := true
	for _, v := range operands {
		if v.Type == table.ListValue {
			return table.Value{}, evalErrorf(TypeError, "Cannot use '%s' with a list", op)
		}
		if v.Type == table.ColumnValue {
			allScalar = false
		}
	}

	and := op == "and"
	if allScalar {
		acc := and
		for _, v := range operands {
			if and {
				acc = acc && v.Scalar.Truthy()
			} else {
				acc = acc || v.Scalar.Truthy()
			}
		}
		return table.ScalarOf(table.BoolScalar(acc)), nil
	}

	out := make([]bool, n)
	for i := range out {
		out[i] = and
	}
	for _, v := range operands {
		bs := v.Broadcast(n).Bools()
		for i := range out {
			if and {
				out[i] = out[i] && bs[i]
			} else {
				out[i] = out[i] || bs[i]
			}
		}
	}
	return table.Bools(out), nil
}

func logicalNot(v table.Value) (table.Value, error) {
	switch v.Type {
	case table.ListValue:
		return table.Value{}, evalErrorf(TypeError, "Cannot apply 'not' to a list")
	case table.ScalarValue:
		return table.ScalarOf(table.BoolScalar(!v.Scalar.Truthy())), nil
	}
	bs := v.Column.Bools()
	out := make([]bool, len(bs))
	for i, b := range bs {
		out[i] = !b
	}
	return table.Bools(out), nil
}
