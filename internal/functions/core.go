package functions

import (
	"math"
	"time"

	"github.com/seenimoa/barb/internal/table"
)

func registerCore(r *Registry) {
	r.registerGroup("core", []Spec{
		{Name: "abs", Signature: "abs(x)", Description: "absolute value", MinArgs: 1, MaxArgs: 1, Fn: fnAbs},
		{Name: "log", Signature: "log(x)", Description: "natural logarithm", MinArgs: 1, MaxArgs: 1, Fn: fnLog},
		{Name: "sqrt", Signature: "sqrt(x)", Description: "square root", MinArgs: 1, MaxArgs: 1, Fn: fnSqrt},
		{Name: "sign", Signature: "sign(x)", Description: "-1, 0 or 1", MinArgs: 1, MaxArgs: 1, Fn: fnSign},
		{Name: "round", Signature: "round(x, n=0)", Description: "round to n decimals, ties to even", MinArgs: 1, MaxArgs: 2, Fn: fnRound},
		{Name: "if", Signature: "if(cond, then, else)", Description: "element-wise conditional", MinArgs: 3, MaxArgs: 3, Fn: fnIf},
	})
}

func fnAbs(_ *table.Table, args []table.Value) (table.Value, error) {
	return mapFloat("abs", args[0], math.Abs)
}

func fnLog(_ *table.Table, args []table.Value) (table.Value, error) {
	return mapFloat("log", args[0], math.Log)
}

func fnSqrt(_ *table.Table, args []table.Value) (table.Value, error) {
	return mapFloat("sqrt", args[0], math.Sqrt)
}

func fnSign(_ *table.Table, args []table.Value) (table.Value, error) {
	return mapFloat("sign", args[0], func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x // 0 or NaN
	})
}

func fnRound(_ *table.Table, args []table.Value) (table.Value, error) {
	n, err := integer("round", args, 1, 0, "n")
	if err != nil {
		return table.Value{}, err
	}
	scale := math.Pow(10, float64(n))
	return mapFloat("round", args[0], func(x float64) float64 {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return x
		}
		return math.RoundToEven(x*scale) / scale
	})
}

// fnIf picks then or else per row. A scalar condition picks one branch as a whole.
func fnIf(t *table.Table, args []table.Value) (table.Value, error) {
	cond, then, otherwise := args[0], args[1], args[2]
	if then.Type == table.ListValue || otherwise.Type == table.ListValue {
		return table.Value{}, argTypeErrorf("if", "branches must be columns or scalars, got list")
	}
	if cond.Type == table.ListValue {
		return table.Value{}, argTypeErrorf("if", "condition must be a column or scalar, got list")
	}
	if cond.Type == table.ScalarValue {
		if cond.Scalar.Truthy() {
			return then, nil
		}
		return otherwise, nil
	}

	mask := cond.Column.Bools()
	a := then.Broadcast(len(mask))
	b := otherwise.Broadcast(len(mask))
	pick := func(i int) bool { return mask[i] }

	switch {
	case a.Kind() == table.Int && b.Kind() == table.Int:
		return table.ColumnOf(table.NewInt(chooseFloats(pick, a.Floats(), b.Floats()))), nil
	case a.Kind().Numeric() && b.Kind().Numeric() && (a.Kind() != table.Bool || b.Kind() != table.Bool):
		return table.Floats(chooseFloats(pick, a.Floats(), b.Floats())), nil
	case a.Kind() == table.Bool && b.Kind() == table.Bool:
		ab, bb := a.Bools(), b.Bools()
		out := make([]bool, len(mask))
		for i := range out {
			out[i] = bb[i]
			if mask[i] {
				out[i] = ab[i]
			}
		}
		return table.Bools(out), nil
	case a.Kind() == table.Date && b.Kind() == table.Date:
		ad, bd := a.Dates(), b.Dates()
		out := make([]time.Time, len(mask))
		for i := range out {
			out[i] = bd[i]
			if mask[i] {
				out[i] = ad[i]
			}
		}
		return table.ColumnOf(table.NewDate(out)), nil
	default:
		as, bs := a.Strings(), b.Strings()
		out := make([]string, len(mask))
		for i := range out {
			out[i] = bs[i]
			if mask[i] {
				out[i] = as[i]
			}
		}
		return table.ColumnOf(table.NewString(out)), nil
	}
}

func chooseFloats(pick func(int) bool, a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = b[i]
		if pick(i) {
			out[i] = a[i]
		}
	}
	return out
}
