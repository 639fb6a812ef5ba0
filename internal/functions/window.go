package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerWindow(r *Registry) {
	r.registerGroup("window", []Spec{
		{Name: "rolling_mean", Signature: "rolling_mean(col, n)", Description: "mean of the last n bars", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rolling_mean", technical.RollingMean)},
		{Name: "rolling_sum", Signature: "rolling_sum(col, n)", Description: "sum of the last n bars", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rolling_sum", technical.RollingSum)},
		{Name: "rolling_max", Signature: "rolling_max(col, n)", Description: "highest value of the last n bars", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rolling_max", technical.RollingMax)},
		{Name: "rolling_min", Signature: "rolling_min(col, n)", Description: "lowest value of the last n bars", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rolling_min", technical.RollingMin)},
		{Name: "rolling_std", Signature: "rolling_std(col, n)", Description: "sample standard deviation of the last n bars", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rolling_std", func(d []float64, n int) []float64 {
			return technical.RollingStd(d, n, 1)
		})},
		{Name: "rolling_count", Signature: "rolling_count(cond, n)", Description: "how many of the last n bars met cond", MinArgs: 2, MaxArgs: 2, Fn: fnRollingCount},
		{Name: "ema", Signature: "ema(col, n)", Description: "exponential moving average, alpha = 2/(n+1)", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("ema", technical.EMA)},
		{Name: "sma", Signature: "sma(col, n)", Description: "simple moving average", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("sma", technical.SMA)},
		{Name: "wma", Signature: "wma(col, n)", Description: "linearly weighted moving average", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("wma", technical.WMA)},
		{Name: "hma", Signature: "hma(col, n)", Description: "Hull moving average", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("hma", technical.HMA)},
		{Name: "vwma", Signature: "vwma(n=20)", Description: "volume weighted moving average of close", MinArgs: 0, MaxArgs: 1, Fn: fnVWMA},
		{Name: "rma", Signature: "rma(col, n)", Description: "Wilder's smoothing, seeded with an SMA", MinArgs: 2, MaxArgs: 2, Fn: rollingFn("rma", technical.RMA)},
	})
}

// rollingFn adapts a (series, window) kernel to a registered function.
func rollingFn(name string, kernel func([]float64, int) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		n, err := window(name, args, 1, 0, "n")
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(data, n)), nil
	}
}

func fnRollingCount(t *table.Table, args []table.Value) (table.Value, error) {
	cond, err := condition("rolling_count", t, args, 0)
	if err != nil {
		return table.Value{}, err
	}
	n, err := window("rolling_count", args, 1, 0, "n")
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.RollingSum(table.NewBool(cond).Floats(), n)), nil
}

func fnVWMA(t *table.Table, args []table.Value) (table.Value, error) {
	n, err := window("vwma", args, 0, 20, "n")
	if err != nil {
		return table.Value{}, err
	}
	cols, err := columns("vwma", t, table.ColClose, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.VWMA(cols[0], cols[1], n)), nil
}
