package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerPattern(r *Registry) {
	r.registerGroup("pattern", []Spec{
		{Name: "streak", Signature: "streak(cond)", Description: "consecutive bars where cond holds, 0 when it does not", MinArgs: 1, MaxArgs: 1, Fn: fnStreak},
		{Name: "bars_since", Signature: "bars_since(cond)", Description: "bars since cond was last true, null if never", MinArgs: 1, MaxArgs: 1, Fn: fnBarsSince},
		{Name: "rank", Signature: "rank(col)", Description: "percentile rank 0-1, ties averaged", MinArgs: 1, MaxArgs: 1, Fn: fnRank},
		{Name: "pivothigh", Signature: "pivothigh(left=5, right=5) | pivothigh(col, left, right)", Description: "swing high value, reported right bars after the pivot", MinArgs: 0, MaxArgs: 3, Fn: pivotFn("pivothigh", table.ColHigh, technical.PivotHigh)},
		{Name: "pivotlow", Signature: "pivotlow(left=5, right=5) | pivotlow(col, left, right)", Description: "swing low value, reported right bars after the pivot", MinArgs: 0, MaxArgs: 3, Fn: pivotFn("pivotlow", table.ColLow, technical.PivotLow)},
		{Name: "valuewhen", Signature: "valuewhen(cond, col, occurrence=0)", Description: "value of col when cond was true, occurrence 0 = most recent", MinArgs: 2, MaxArgs: 3, Fn: fnValueWhen},
	})
}

func fnStreak(t *table.Table, args []table.Value) (table.Value, error) {
	cond, err := condition("streak", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	return intColumn(technical.Streak(cond)), nil
}

func fnBarsSince(t *table.Table, args []table.Value) (table.Value, error) {
	cond, err := condition("bars_since", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.BarsSince(cond)), nil
}

func fnRank(t *table.Table, args []table.Value) (table.Value, error) {
	data, err := series("rank", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.Rank(data)), nil
}

// pivotFn accepts either (left, right) over the default column or
// (col, left, right) over an explicit one.
func pivotFn(name, defaultCol string, kernel func([]float64, int, int) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		var data []float64
		offset := 0
		if len(args) > 0 && args[0].IsColumn() {
			d, err := series(name, t, args, 0)
			if err != nil {
				return table.Value{}, err
			}
			data, offset = d, 1
		} else {
			if len(args) > 2 {
				return table.Value{}, &ArityError{Name: name, Got: len(args)}
			}
			cols, err := columns(name, t, defaultCol)
			if err != nil {
				return table.Value{}, err
			}
			data = cols[0]
		}

		left, err := integer(name, args, offset, 5, "left")
		if err != nil {
			return table.Value{}, err
		}
		right, err := integer(name, args, offset+1, 5, "right")
		if err != nil {
			return table.Value{}, err
		}
		if left < 0 || right < 0 {
			return table.Value{}, argTypeErrorf(name, "'left' and 'right' must not be negative")
		}
		return table.Floats(kernel(data, left, right)), nil
	}
}

func fnValueWhen(t *table.Table, args []table.Value) (table.Value, error) {
	cond, err := condition("valuewhen", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	src, err := series("valuewhen", t, args, 1)
	if err != nil {
		return table.Value{}, err
	}
	occurrence, err := integer("valuewhen", args, 2, 0, "occurrence")
	if err != nil {
		return table.Value{}, err
	}
	if occurrence < 0 {
		return table.Value{}, argTypeErrorf("valuewhen", "'occurrence' must not be negative")
	}
	return table.Floats(technical.ValueWhen(cond, src, occurrence)), nil
}
