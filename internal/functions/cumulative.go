package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerCumulative(r *Registry) {
	r.registerGroup("cumulative", []Spec{
		{Name: "cummax", Signature: "cummax(col)", Description: "running maximum", MinArgs: 1, MaxArgs: 1, Fn: cumulativeFn("cummax", technical.CumMax)},
		{Name: "cummin", Signature: "cummin(col)", Description: "running minimum", MinArgs: 1, MaxArgs: 1, Fn: cumulativeFn("cummin", technical.CumMin)},
		{Name: "cumsum", Signature: "cumsum(col)", Description: "running total", MinArgs: 1, MaxArgs: 1, Fn: cumulativeFn("cumsum", technical.CumSum)},
	})
}

func cumulativeFn(name string, kernel func([]float64) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(data)), nil
	}
}
