package functions

import (
	"math"

	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerConvenience(r *Registry) {
	r.registerGroup("convenience", []Spec{
		// ── Price ──
		{Name: "gap", Signature: "gap()", Description: "open - previous close", MinArgs: 0, MaxArgs: 0, Fn: fnGap},
		{Name: "gap_pct", Signature: "gap_pct()", Description: "gap as % of previous close", MinArgs: 0, MaxArgs: 0, Fn: fnGapPct},
		{Name: "change", Signature: "change(col, n=1)", Description: "col - col n bars ago", MinArgs: 1, MaxArgs: 2, Fn: changeFn("change", false)},
		{Name: "change_pct", Signature: "change_pct(col, n=1)", Description: "change as % of the value n bars ago", MinArgs: 1, MaxArgs: 2, Fn: changeFn("change_pct", true)},
		{Name: "range", Signature: "range()", Description: "high - low", MinArgs: 0, MaxArgs: 0, Fn: barFn("range", func(o, h, l, c float64) float64 { return h - l })},
		{Name: "range_pct", Signature: "range_pct()", Description: "range as % of low", MinArgs: 0, MaxArgs: 0, Fn: barFn("range_pct", func(o, h, l, c float64) float64 { return (h - l) / l * 100 })},
		{Name: "midpoint", Signature: "midpoint()", Description: "(high + low) / 2", MinArgs: 0, MaxArgs: 0, Fn: barFn("midpoint", func(o, h, l, c float64) float64 { return (h + l) / 2 })},
		{Name: "typical_price", Signature: "typical_price()", Description: "(high + low + close) / 3", MinArgs: 0, MaxArgs: 0, Fn: barFn("typical_price", func(o, h, l, c float64) float64 { return (h + l + c) / 3 })},

		// ── Candle ──
		{Name: "body", Signature: "body()", Description: "close - open", MinArgs: 0, MaxArgs: 0, Fn: barFn("body", func(o, h, l, c float64) float64 { return c - o })},
		{Name: "body_pct", Signature: "body_pct()", Description: "body as % of open", MinArgs: 0, MaxArgs: 0, Fn: barFn("body_pct", func(o, h, l, c float64) float64 { return (c - o) / o * 100 })},
		{Name: "upper_wick", Signature: "upper_wick()", Description: "high - max(open, close)", MinArgs: 0, MaxArgs: 0, Fn: barFn("upper_wick", func(o, h, l, c float64) float64 { return h - math.Max(o, c) })},
		{Name: "lower_wick", Signature: "lower_wick()", Description: "min(open, close) - low", MinArgs: 0, MaxArgs: 0, Fn: barFn("lower_wick", func(o, h, l, c float64) float64 { return math.Min(o, c) - l })},
		{Name: "green", Signature: "green()", Description: "close > open", MinArgs: 0, MaxArgs: 0, Fn: barFlag("green", func(o, h, l, c float64) bool { return c > o })},
		{Name: "red", Signature: "red()", Description: "close < open", MinArgs: 0, MaxArgs: 0, Fn: barFlag("red", func(o, h, l, c float64) bool { return c < o })},
		{Name: "doji", Signature: "doji(threshold=0.1)", Description: "body smaller than threshold × range", MinArgs: 0, MaxArgs: 1, Fn: fnDoji},
		{Name: "inside_bar", Signature: "inside_bar()", Description: "range inside the previous bar's", MinArgs: 0, MaxArgs: 0, Fn: rangeFlag("inside_bar", technical.InsideBar)},
		{Name: "outside_bar", Signature: "outside_bar()", Description: "range engulfs the previous bar's", MinArgs: 0, MaxArgs: 0, Fn: rangeFlag("outside_bar", technical.OutsideBar)},

		// ── Signal ──
		{Name: "crossover", Signature: "crossover(a, b)", Description: "a crosses above b", MinArgs: 2, MaxArgs: 2, Fn: crossFn("crossover", technical.Crossover)},
		{Name: "crossunder", Signature: "crossunder(a, b)", Description: "a crosses below b", MinArgs: 2, MaxArgs: 2, Fn: crossFn("crossunder", technical.Crossunder)},
	})
}

func ohlc(name string, t *table.Table) ([][]float64, error) {
	return columns(name, t, table.ColOpen, table.ColHigh, table.ColLow, table.ColClose)
}

// barFn computes a float per bar from its OHLC values.
func barFn(name string, f func(o, h, l, c float64) float64) Func {
	return func(t *table.Table, _ []table.Value) (table.Value, error) {
		cols, err := ohlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		out := make([]float64, t.Len())
		for i := range out {
			out[i] = f(cols[0][i], cols[1][i], cols[2][i], cols[3][i])
		}
		return table.Floats(out), nil
	}
}

// barFlag computes a boolean per bar from its OHLC values.
func barFlag(name string, f func(o, h, l, c float64) bool) Func {
	return func(t *table.Table, _ []table.Value) (table.Value, error) {
		cols, err := ohlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		out := make([]bool, t.Len())
		for i := range out {
			out[i] = f(cols[0][i], cols[1][i], cols[2][i], cols[3][i])
		}
		return table.Bools(out), nil
	}
}

func fnGap(t *table.Table, _ []table.Value) (table.Value, error) {
	cols, err := columns("gap", t, table.ColOpen, table.ColClose)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.Sub(cols[0], technical.Shift(cols[1], 1))), nil
}

func fnGapPct(t *table.Table, _ []table.Value) (table.Value, error) {
	cols, err := columns("gap_pct", t, table.ColOpen, table.ColClose)
	if err != nil {
		return table.Value{}, err
	}
	prev := technical.Shift(cols[1], 1)
	out := make([]float64, len(prev))
	for i := range out {
		out[i] = (cols[0][i] - prev[i]) / prev[i] * 100
	}
	return table.Floats(out), nil
}

func changeFn(name string, pct bool) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		n, err := integer(name, args, 1, 1, "n")
		if err != nil {
			return table.Value{}, err
		}
		if pct {
			return table.Floats(technical.ROC(data, n)), nil
		}
		return table.Floats(technical.Diff(data, n)), nil
	}
}

func fnDoji(t *table.Table, args []table.Value) (table.Value, error) {
	threshold, err := number("doji", args, 0, 0.1, "threshold")
	if err != nil {
		return table.Value{}, err
	}
	cols, err := ohlc("doji", t)
	if err != nil {
		return table.Value{}, err
	}
	return table.Bools(technical.Doji(cols[0], cols[1], cols[2], cols[3], threshold)), nil
}

func rangeFlag(name string, kernel func(high, low []float64) []bool) Func {
	return func(t *table.Table, _ []table.Value) (table.Value, error) {
		cols, err := columns(name, t, table.ColHigh, table.ColLow)
		if err != nil {
			return table.Value{}, err
		}
		return table.Bools(kernel(cols[0], cols[1])), nil
	}
}

func crossFn(name string, kernel func(a, b []float64) []bool) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		a, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		b, err := series(name, t, args, 1)
		if err != nil {
			return table.Value{}, err
		}
		return table.Bools(kernel(a, b)), nil
	}
}
