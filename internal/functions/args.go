package functions

import (
	"math"

	"github.com/seenimoa/barb/internal/table"
)

// ════════════════════════════════════════════════════════════════════
// Argument helpers
// ════════════════════════════════════════════════════════════════════

// series returns argument i as a numeric series with one value per row.
// Scalars are broadcast.
func series(name string, t *table.Table, args []table.Value, i int) ([]float64, error) {
	v := args[i]
	switch v.Type {
	case table.ListValue:
		return nil, argTypeErrorf(name, "argument %d must be a column or number, got list", i+1)
	case table.ScalarValue:
		if !v.Scalar.Kind.Numeric() {
			return nil, argTypeErrorf(name, "argument %d must be numeric, got %s", i+1, v.TypeName())
		}
	case table.ColumnValue:
		if !v.Column.Kind().Numeric() {
			return nil, argTypeErrorf(name, "argument %d must be numeric, got %s", i+1, v.TypeName())
		}
	}
	return v.Broadcast(t.Len()).Floats(), nil
}

// condition returns argument i as a boolean series. Missing numbers are false.
func condition(name string, t *table.Table, args []table.Value, i int) ([]bool, error) {
	v := args[i]
	if v.Type == table.ListValue {
		return nil, argTypeErrorf(name, "argument %d must be a condition, got list", i+1)
	}
	return v.Broadcast(t.Len()).Bools(), nil
}

// number returns scalar argument i, or def when the argument was omitted.
func number(name string, args []table.Value, i int, def float64, param string) (float64, error) {
	if i >= len(args) {
		return def, nil
	}
	v := args[i]
	if v.Type != table.ScalarValue || !v.Scalar.Kind.Numeric() {
		return 0, argTypeErrorf(name, "'%s' must be a number, got %s", param, v.TypeName())
	}
	return v.Scalar.Float(), nil
}

// integer returns scalar argument i truncated to an int.
func integer(name string, args []table.Value, i int, def int, param string) (int, error) {
	f, err := number(name, args, i, float64(def), param)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, argTypeErrorf(name, "'%s' must be an integer, got %v", param, f)
	}
	return int(f), nil
}

// window returns scalar argument i as a positive window length.
func window(name string, args []table.Value, i int, def int, param string) (int, error) {
	n, err := integer(name, args, i, def, param)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, argTypeErrorf(name, "'%s' must be a positive integer, got %d", param, n)
	}
	return n, nil
}

// columns returns the named table columns as float series.
func columns(name string, t *table.Table, cols ...string) ([][]float64, error) {
	out := make([][]float64, len(cols))
	for i, c := range cols {
		col, ok := t.Column(c)
		if !ok {
			return nil, argTypeErrorf(name, "requires column '%s'. Available: %s", c, t.Available())
		}
		out[i] = col.Floats()
	}
	return out, nil
}

// hlc returns the high, low and close columns.
func hlc(name string, t *table.Table) (high, low, closes []float64, err error) {
	cols, err := columns(name, t, table.ColHigh, table.ColLow, table.ColClose)
	if err != nil {
		return nil, nil, nil, err
	}
	return cols[0], cols[1], cols[2], nil
}

// mapFloat applies f element-wise to a numeric scalar or column.
func mapFloat(name string, v table.Value, f func(float64) float64) (table.Value, error) {
	switch v.Type {
	case table.ScalarValue:
		if !v.Scalar.Kind.Numeric() {
			return table.Value{}, argTypeErrorf(name, "argument must be numeric, got %s", v.TypeName())
		}
		return table.ScalarOf(table.FloatScalar(f(v.Scalar.Float()))), nil
	case table.ColumnValue:
		if !v.Column.Kind().Numeric() {
			return table.Value{}, argTypeErrorf(name, "argument must be numeric, got %s", v.TypeName())
		}
		in := v.Column.Floats()
		out := make([]float64, len(in))
		for i, x := range in {
			out[i] = f(x)
		}
		return table.Floats(out), nil
	}
	return table.Value{}, argTypeErrorf(name, "argument must be a column or number, got list")
}

func intColumn(v []float64) table.Value {
	return table.ColumnOf(table.NewInt(v))
}

func scalar(v float64) table.Value {
	return table.ScalarOf(table.FloatScalar(v))
}
