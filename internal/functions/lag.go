package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerLag(r *Registry) {
	r.registerGroup("lag", []Spec{
		{Name: "prev", Signature: "prev(col, n=1)", Description: "value n bars ago", MinArgs: 1, MaxArgs: 2, Fn: shiftBy("prev", 1)},
		{Name: "next", Signature: "next(col, n=1)", Description: "value n bars ahead", MinArgs: 1, MaxArgs: 2, Fn: shiftBy("next", -1)},
	})
}

// shiftBy builds prev/next. dir is 1 for lagging and -1 for leading.
func shiftBy(name string, dir int) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		n, err := integer(name, args, 1, 1, "n")
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(technical.Shift(data, dir*n)), nil
	}
}
