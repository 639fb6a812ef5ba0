package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerTrend(r *Registry) {
	r.registerGroup("trend", []Spec{
		{Name: "macd", Signature: "macd(col, fast=12, slow=26)", Description: "EMA(fast) - EMA(slow)", MinArgs: 1, MaxArgs: 3, Fn: macdFn("macd")},
		{Name: "macd_signal", Signature: "macd_signal(col, fast=12, slow=26, sig=9)", Description: "EMA of the MACD line", MinArgs: 1, MaxArgs: 4, Fn: macdFn("macd_signal")},
		{Name: "macd_hist", Signature: "macd_hist(col, fast=12, slow=26, sig=9)", Description: "MACD - signal", MinArgs: 1, MaxArgs: 4, Fn: macdFn("macd_hist")},
		{Name: "adx", Signature: "adx(n=14)", Description: "Average Directional Index, warms up after about 2n bars", MinArgs: 0, MaxArgs: 1, Fn: dmiFn("adx", func(d technical.DMI) []float64 { return d.ADX })},
		{Name: "plus_di", Signature: "plus_di(n=14)", Description: "+DI, upward directional movement", MinArgs: 0, MaxArgs: 1, Fn: dmiFn("plus_di", func(d technical.DMI) []float64 { return d.PlusDI })},
		{Name: "minus_di", Signature: "minus_di(n=14)", Description: "-DI, downward directional movement", MinArgs: 0, MaxArgs: 1, Fn: dmiFn("minus_di", func(d technical.DMI) []float64 { return d.MinusDI })},
		{Name: "supertrend", Signature: "supertrend(n=10, mult=3.0)", Description: "SuperTrend line", MinArgs: 0, MaxArgs: 2, Fn: superTrendFn("supertrend", false)},
		{Name: "supertrend_dir", Signature: "supertrend_dir(n=10, mult=3.0)", Description: "SuperTrend direction, 1 up, -1 down", MinArgs: 0, MaxArgs: 2, Fn: superTrendFn("supertrend_dir", true)},
		{Name: "sar", Signature: "sar(accel=0.02, max_accel=0.2)", Description: "Parabolic SAR", MinArgs: 0, MaxArgs: 2, Fn: fnSAR},
	})
}

func macdFn(name string) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		fast, err := window(name, args, 1, 12, "fast")
		if err != nil {
			return table.Value{}, err
		}
		slow, err := window(name, args, 2, 26, "slow")
		if err != nil {
			return table.Value{}, err
		}
		sig, err := window(name, args, 3, 9, "sig")
		if err != nil {
			return table.Value{}, err
		}

		switch name {
		case "macd_signal":
			return table.Floats(technical.MACDSignal(data, fast, slow, sig)), nil
		case "macd_hist":
			return table.Floats(technical.MACDHist(data, fast, slow, sig)), nil
		}
		return table.Floats(technical.MACD(data, fast, slow)), nil
	}
}

func dmiFn(name string, pick func(technical.DMI) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		n, err := window(name, args, 0, 14, "n")
		if err != nil {
			return table.Value{}, err
		}
		high, low, closes, err := hlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(pick(technical.DirectionalMovement(high, low, closes, n))), nil
	}
}

func superTrendFn(name string, wantDirection bool) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		n, err := window(name, args, 0, 10, "n")
		if err != nil {
			return table.Value{}, err
		}
		mult, err := number(name, args, 1, 3.0, "mult")
		if err != nil {
			return table.Value{}, err
		}
		high, low, closes, err := hlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		value, direction := technical.SuperTrend(high, low, closes, n, mult)
		if wantDirection {
			return table.Floats(direction), nil
		}
		return table.Floats(value), nil
	}
}

func fnSAR(t *table.Table, args []table.Value) (table.Value, error) {
	accel, err := number("sar", args, 0, 0.02, "accel")
	if err != nil {
		return table.Value{}, err
	}
	maxAccel, err := number("sar", args, 1, 0.2, "max_accel")
	if err != nil {
		return table.Value{}, err
	}
	high, low, closes, err := hlc("sar", t)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.ParabolicSAR(high, low, closes, accel, maxAccel)), nil
}
