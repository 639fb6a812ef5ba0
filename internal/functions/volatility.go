package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerVolatility(r *Registry) {
	r.registerGroup("volatility", []Spec{
		{Name: "tr", Signature: "tr()", Description: "True Range", MinArgs: 0, MaxArgs: 0, Fn: fnTR},
		{Name: "atr", Signature: "atr(n=14)", Description: "Average True Range, Wilder's smoothing", MinArgs: 0, MaxArgs: 1, Fn: hlcWindowFn("atr", 14, technical.ATR)},
		{Name: "natr", Signature: "natr(n=14)", Description: "ATR as % of close", MinArgs: 0, MaxArgs: 1, Fn: hlcWindowFn("natr", 14, technical.NATR)},

		// ── Bollinger ──
		{Name: "bbands_upper", Signature: "bbands_upper(col, n=20, mult=2.0)", Description: "SMA + mult × stdev", MinArgs: 1, MaxArgs: 3, Fn: bollingerFn("bbands_upper", func(d []float64, n int, m float64) []float64 {
			return technical.BollingerBands(d, n, m).Upper
		})},
		{Name: "bbands_middle", Signature: "bbands_middle(col, n=20)", Description: "SMA", MinArgs: 1, MaxArgs: 2, Fn: bollingerFn("bbands_middle", func(d []float64, n int, _ float64) []float64 {
			return technical.SMA(d, n)
		})},
		{Name: "bbands_lower", Signature: "bbands_lower(col, n=20, mult=2.0)", Description: "SMA - mult × stdev", MinArgs: 1, MaxArgs: 3, Fn: bollingerFn("bbands_lower", func(d []float64, n int, m float64) []float64 {
			return technical.BollingerBands(d, n, m).Lower
		})},
		{Name: "bbands_width", Signature: "bbands_width(col, n=20, mult=2.0)", Description: "(upper - lower) / middle × 100", MinArgs: 1, MaxArgs: 3, Fn: bollingerFn("bbands_width", technical.BollingerWidth)},
		{Name: "bbands_pctb", Signature: "bbands_pctb(col, n=20, mult=2.0)", Description: "position between the bands, 0 lower, 1 upper", MinArgs: 1, MaxArgs: 3, Fn: bollingerFn("bbands_pctb", technical.BollingerPctB)},

		// ── Keltner ──
		{Name: "kc_upper", Signature: "kc_upper(n=20, atr_n=10, mult=1.5)", Description: "EMA(close, n) + mult × ATR(atr_n)", MinArgs: 0, MaxArgs: 3, Fn: keltnerFn("kc_upper", func(h, l, c []float64, n, atrN int, m float64) []float64 {
			return technical.Keltner(h, l, c, n, atrN, m).Upper
		})},
		{Name: "kc_middle", Signature: "kc_middle(n=20)", Description: "EMA(close, n)", MinArgs: 0, MaxArgs: 1, Fn: keltnerFn("kc_middle", func(_, _, c []float64, n, _ int, _ float64) []float64 {
			return technical.EMA(c, n)
		})},
		{Name: "kc_lower", Signature: "kc_lower(n=20, atr_n=10, mult=1.5)", Description: "EMA(close, n) - mult × ATR(atr_n)", MinArgs: 0, MaxArgs: 3, Fn: keltnerFn("kc_lower", func(h, l, c []float64, n, atrN int, m float64) []float64 {
			return technical.Keltner(h, l, c, n, atrN, m).Lower
		})},
		{Name: "kc_width", Signature: "kc_width(n=20, atr_n=10, mult=1.5)", Description: "(upper - lower) / middle", MinArgs: 0, MaxArgs: 3, Fn: keltnerFn("kc_width", technical.KeltnerWidth)},

		// ── Donchian ──
		{Name: "donchian_upper", Signature: "donchian_upper(n=20)", Description: "highest high of the last n bars", MinArgs: 0, MaxArgs: 1, Fn: donchianFn("donchian_upper", table.ColHigh, technical.RollingMax)},
		{Name: "donchian_lower", Signature: "donchian_lower(n=20)", Description: "lowest low of the last n bars", MinArgs: 0, MaxArgs: 1, Fn: donchianFn("donchian_lower", table.ColLow, technical.RollingMin)},
	})
}

func fnTR(t *table.Table, _ []table.Value) (table.Value, error) {
	high, low, closes, err := hlc("tr", t)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.TrueRange(high, low, closes)), nil
}

func bollingerFn(name string, kernel func(data []float64, n int, mult float64) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		n, err := window(name, args, 1, 20, "n")
		if err != nil {
			return table.Value{}, err
		}
		mult, err := number(name, args, 2, 2.0, "mult")
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(data, n, mult)), nil
	}
}

func keltnerFn(name string, kernel func(high, low, closes []float64, n, atrN int, mult float64) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		n, err := window(name, args, 0, 20, "n")
		if err != nil {
			return table.Value{}, err
		}
		atrN, err := window(name, args, 1, 10, "atr_n")
		if err != nil {
			return table.Value{}, err
		}
		mult, err := number(name, args, 2, 1.5, "mult")
		if err != nil {
			return table.Value{}, err
		}
		high, low, closes, err := hlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(high, low, closes, n, atrN, mult)), nil
	}
}

func donchianFn(name, col string, kernel func([]float64, int) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		n, err := window(name, args, 0, 20, "n")
		if err != nil {
			return table.Value{}, err
		}
		cols, err := columns(name, t, col)
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(cols[0], n)), nil
	}
}
