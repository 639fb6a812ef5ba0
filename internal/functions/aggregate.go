package functions

import (
	"math"
	"sort"

	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

// groupAggregates are the reducers allowed in a grouped select. count()
// is handled by the caller since it needs no column.
var groupAggregates = map[string]func([]float64) float64{
	"mean":   technical.Mean,
	"sum":    technical.Sum,
	"max":    technical.Max,
	"min":    technical.Min,
	"std":    technical.Std,
	"median": technical.Median,
}

// GroupAggregate returns the reducer for a grouped select.
func GroupAggregate(name string) (func([]float64) float64, bool) {
	f, ok := groupAggregates[name]
	return f, ok
}

// GroupAggregateNames returns the sorted names accepted by GroupAggregate.
func GroupAggregateNames() []string {
	names := make([]string, 0, len(groupAggregates))
	for name := range groupAggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registerAggregate(r *Registry) {
	r.registerGroup("aggregate", []Spec{
		{Name: "mean", Signature: "mean(col)", Description: "average, ignoring nulls", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("mean", technical.Mean)},
		{Name: "sum", Signature: "sum(col)", Description: "total, ignoring nulls", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("sum", technical.Sum)},
		{Name: "max", Signature: "max(col)", Description: "largest value", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("max", technical.Max)},
		{Name: "min", Signature: "min(col)", Description: "smallest value", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("min", technical.Min)},
		{Name: "std", Signature: "std(col)", Description: "sample standard deviation", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("std", technical.Std)},
		{Name: "median", Signature: "median(col)", Description: "middle value", MinArgs: 1, MaxArgs: 1, Fn: reduceFn("median", technical.Median)},
		{Name: "count", Signature: "count()", Description: "number of rows", MinArgs: 0, MaxArgs: 0, Fn: fnCount},
		{Name: "percentile", Signature: "percentile(col, p)", Description: "p-th quantile, p in 0-1, linear interpolation", MinArgs: 2, MaxArgs: 2, Fn: fnPercentile},
		{Name: "correlation", Signature: "correlation(col1, col2)", Description: "Pearson correlation", MinArgs: 2, MaxArgs: 2, Fn: fnCorrelation},
		{Name: "last", Signature: "last(col)", Description: "value on the final row", MinArgs: 1, MaxArgs: 1, Fn: fnLast},
	})
}

func reduceFn(name string, reduce func([]float64) float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		return scalar(reduce(data)), nil
	}
}

func fnCount(t *table.Table, _ []table.Value) (table.Value, error) {
	return table.ScalarOf(table.IntScalar(int64(t.Len()))), nil
}

func fnPercentile(t *table.Table, args []table.Value) (table.Value, error) {
	data, err := series("percentile", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	p, err := number("percentile", args, 1, 0, "p")
	if err != nil {
		return table.Value{}, err
	}
	if p < 0 || p > 1 {
		return table.Value{}, argTypeErrorf("percentile", "'p' must be between 0 and 1, got %v", p)
	}
	return scalar(technical.Quantile(data, p)), nil
}

func fnCorrelation(t *table.Table, args []table.Value) (table.Value, error) {
	a, err := series("correlation", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	b, err := series("correlation", t, args, 1)
	if err != nil {
		return table.Value{}, err
	}
	return scalar(technical.Correlation(a, b)), nil
}

func fnLast(_ *table.Table, args []table.Value) (table.Value, error) {
	v := args[0]
	switch v.Type {
	case table.ScalarValue:
		return v, nil
	case table.ColumnValue:
		if v.Column.Len() == 0 {
			return scalar(math.NaN()), nil
		}
		return table.ScalarOf(v.Column.At(v.Column.Len() - 1)), nil
	}
	return table.Value{}, argTypeErrorf("last", "argument must be a column, got list")
}
