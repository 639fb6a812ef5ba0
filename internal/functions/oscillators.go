package functions

import (
	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerOscillators(r *Registry) {
	r.registerGroup("oscillators", []Spec{
		{Name: "rsi", Signature: "rsi(col, n=14)", Description: "Relative Strength Index with Wilder's smoothing", MinArgs: 1, MaxArgs: 2, Fn: seriesWindowFn("rsi", 14, technical.RSI)},
		{Name: "stoch_k", Signature: "stoch_k(n=14)", Description: "Stochastic %K, close within the n-bar range", MinArgs: 0, MaxArgs: 1, Fn: hlcWindowFn("stoch_k", 14, technical.StochK)},
		{Name: "stoch_d", Signature: "stoch_d(n=14, smooth=3)", Description: "Stochastic %D = SMA(%K, smooth)", MinArgs: 0, MaxArgs: 2, Fn: fnStochD},
		{Name: "cci", Signature: "cci(n=20)", Description: "Commodity Channel Index using mean deviation", MinArgs: 0, MaxArgs: 1, Fn: hlcWindowFn("cci", 20, technical.CCI)},
		{Name: "williams_r", Signature: "williams_r(n=14)", Description: "Williams %R, -100 to 0", MinArgs: 0, MaxArgs: 1, Fn: hlcWindowFn("williams_r", 14, technical.WilliamsR)},
		{Name: "mfi", Signature: "mfi(n=14)", Description: "Money Flow Index", MinArgs: 0, MaxArgs: 1, Fn: fnMFI},
		{Name: "roc", Signature: "roc(col, n=1)", Description: "rate of change in %", MinArgs: 1, MaxArgs: 2, Fn: seriesWindowFn("roc", 1, technical.ROC)},
		{Name: "momentum", Signature: "momentum(col, n=10)", Description: "absolute change over n bars", MinArgs: 1, MaxArgs: 2, Fn: seriesWindowFn("momentum", 10, func(d []float64, n int) []float64 {
			return technical.Diff(d, n)
		})},
	})
}

// seriesWindowFn adapts kernels of the form f(col, n=def).
func seriesWindowFn(name string, def int, kernel func([]float64, int) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		data, err := series(name, t, args, 0)
		if err != nil {
			return table.Value{}, err
		}
		n, err := window(name, args, 1, def, "n")
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(data, n)), nil
	}
}

// hlcWindowFn adapts kernels over high, low and close with a window as
// the only explicit argument.
func hlcWindowFn(name string, def int, kernel func(high, low, closes []float64, n int) []float64) Func {
	return func(t *table.Table, args []table.Value) (table.Value, error) {
		n, err := window(name, args, 0, def, "n")
		if err != nil {
			return table.Value{}, err
		}
		high, low, closes, err := hlc(name, t)
		if err != nil {
			return table.Value{}, err
		}
		return table.Floats(kernel(high, low, closes, n)), nil
	}
}

func fnStochD(t *table.Table, args []table.Value) (table.Value, error) {
	n, err := window("stoch_d", args, 0, 14, "n")
	if err != nil {
		return table.Value{}, err
	}
	smooth, err := window("stoch_d", args, 1, 3, "smooth")
	if err != nil {
		return table.Value{}, err
	}
	high, low, closes, err := hlc("stoch_d", t)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.StochD(high, low, closes, n, smooth)), nil
}

func fnMFI(t *table.Table, args []table.Value) (table.Value, error) {
	n, err := window("mfi", args, 0, 14, "n")
	if err != nil {
		return table.Value{}, err
	}
	cols, err := columns("mfi", t, table.ColHigh, table.ColLow, table.ColClose, table.ColVolume)
	if err != nil {
		return table.Value{}, err
	}
	return table.Floats(technical.MFI(cols[0], cols[1], cols[2], cols[3], n)), nil
}
