package functions

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

var start = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC) // a Tuesday

// makeBars builds rising one-minute bars: open p, high p+2, low p-1, close p+1.
func makeBars(n int) []models.OHLCV {
	bars := make([]models.OHLCV, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p,
			High:      p + 2,
			Low:       p - 1,
			Close:     p + 1,
			Volume:    int64(1000 + i),
		}
	}
	return bars
}

func col(t *testing.T, tbl *table.Table, name string) table.Value {
	t.Helper()
	c, ok := tbl.Column(name)
	require.True(t, ok, "column %s", name)
	return table.ColumnOf(c)
}

func num(v float64) table.Value { return table.ScalarOf(table.FloatScalar(v)) }

func str(s string) table.Value { return table.ScalarOf(table.StringScalar(s)) }

func call(t *testing.T, tbl *table.Table, name string, args ...table.Value) table.Value {
	t.Helper()
	v, err := Builtin().Call(tbl, name, args)
	require.NoError(t, err)
	return v
}

func TestBuiltinCatalogue(t *testing.T) {
	r := Builtin()
	names := []string{
		"abs", "log", "sqrt", "sign", "round", "if",
		"prev", "next",
		"rolling_mean", "rolling_sum", "rolling_max", "rolling_min", "rolling_std", "rolling_count",
		"ema", "sma", "wma", "hma", "vwma", "rma",
		"cummax", "cummin", "cumsum",
		"streak", "bars_since", "rank", "pivothigh", "pivotlow", "valuewhen",
		"mean", "sum", "max", "min", "std", "median", "count", "percentile", "correlation", "last",
		"year", "quarter", "month", "date", "day_of_month", "dayofweek", "hour", "minute",
		"gap", "gap_pct", "change", "change_pct", "range", "range_pct", "midpoint", "typical_price",
		"body", "body_pct", "upper_wick", "lower_wick", "green", "red", "doji", "inside_bar", "outside_bar",
		"crossover", "crossunder",
		"rsi", "stoch_k", "stoch_d", "cci", "williams_r", "mfi", "roc", "momentum",
		"macd", "macd_signal", "macd_hist", "adx", "plus_di", "minus_di", "supertrend", "supertrend_dir", "sar",
		"tr", "atr", "natr", "bbands_upper", "bbands_middle", "bbands_lower", "bbands_width", "bbands_pctb",
		"kc_upper", "kc_middle", "kc_lower", "kc_width", "donchian_upper", "donchian_lower",
		"obv", "vwap_day", "ad_line", "volume_ratio", "volume_sma",
		"session_high", "session_low", "session_open", "session_close",
	}
	for _, name := range names {
		s, ok := r.Lookup(name)
		if assert.True(t, ok, name) {
			assert.NotEmpty(t, s.Category, name)
			assert.NotEmpty(t, s.Signature, name)
			assert.NotNil(t, s.Fn, name)
		}
	}
	assert.Len(t, r.Names(), len(names))
	assert.IsNonDecreasing(t, r.Names())
}

func TestCallErrors(t *testing.T) {
	tbl := table.FromBars(makeBars(5))
	r := Builtin()

	t.Run("unknown function", func(t *testing.T) {
		_, err := r.Call(tbl, "nope", nil)
		var target *UnknownFunctionError
		require.ErrorAs(t, err, &target)
		assert.Contains(t, err.Error(), "Unknown function 'nope'. Available: abs,")
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := r.Call(tbl, "rsi", nil)
		var target *ArityError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "Wrong arguments for 'rsi': got 0 args", err.Error())

		_, err = r.Call(tbl, "count", []table.Value{num(1)})
		assert.ErrorAs(t, err, &target)
	})

	t.Run("non-positive window", func(t *testing.T) {
		_, err := r.Call(tbl, "sma", []table.Value{col(t, tbl, "close"), num(0)})
		var target *ArgTypeError
		require.ErrorAs(t, err, &target)
		assert.Contains(t, err.Error(), "positive integer")
	})

	t.Run("string where a number is needed", func(t *testing.T) {
		_, err := r.Call(tbl, "abs", []table.Value{str("x")})
		var target *ArgTypeError
		assert.ErrorAs(t, err, &target)
	})
}

func TestCoreFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(3))

	v := call(t, tbl, "abs", num(-2.5))
	assert.Equal(t, 2.5, v.Scalar.Num)

	v = call(t, tbl, "round", num(2.345), num(2))
	assert.InDelta(t, 2.34, v.Scalar.Num, 1e-9) // ties go to even like numpy
	v = call(t, tbl, "sign", num(-3))
	assert.Equal(t, -1.0, v.Scalar.Num)

	v = call(t, tbl, "if", call(t, tbl, "green"), str("up"), str("down"))
	require.True(t, v.IsColumn())
	assert.Equal(t, []string{"up", "up", "up"}, v.Column.Strings())

	v = call(t, tbl, "if", table.ScalarOf(table.BoolScalar(false)), num(1), num(2))
	assert.Equal(t, 2.0, v.Scalar.Num)
}

func TestLagFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(4))
	closes := col(t, tbl, "close")

	prev := call(t, tbl, "prev", closes).Column.Floats()
	assert.True(t, math.IsNaN(prev[0]))
	assert.Equal(t, []float64{101, 102, 103}, prev[1:])

	next := call(t, tbl, "next", closes, num(2)).Column.Floats()
	assert.Equal(t, []float64{103, 104}, next[:2])
	assert.True(t, math.IsNaN(next[3]))
}

func TestTimeFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(2))

	assert.Equal(t, []float64{1, 1}, call(t, tbl, "dayofweek").Column.Floats())
	assert.Equal(t, []float64{9, 9}, call(t, tbl, "hour").Column.Floats())
	assert.Equal(t, []float64{30, 31}, call(t, tbl, "minute").Column.Floats())
	assert.Equal(t, []float64{1, 1}, call(t, tbl, "quarter").Column.Floats())
	assert.Equal(t, table.Int, call(t, tbl, "year").Column.Kind())

	d := call(t, tbl, "date")
	assert.Equal(t, []string{"2024-01-02", "2024-01-02"}, d.Column.Strings())

	lit := call(t, tbl, "date", str("2024-01-15"))
	assert.Equal(t, table.Date, lit.Scalar.Kind)
	assert.Equal(t, "2024-01-15", lit.Scalar.String())

	_, err := Builtin().Call(tbl, "date", []table.Value{str("15/01/2024")})
	assert.Error(t, err)

	_, err = Builtin().Call(table.NewFrame(2), "hour", nil)
	assert.Error(t, err)
}

func TestAggregateFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(5))
	closes := col(t, tbl, "close")

	assert.Equal(t, 103.0, call(t, tbl, "mean", closes).Scalar.Num)
	assert.Equal(t, 515.0, call(t, tbl, "sum", closes).Scalar.Num)
	assert.Equal(t, 105.0, call(t, tbl, "max", closes).Scalar.Num)
	assert.Equal(t, 103.0, call(t, tbl, "median", closes).Scalar.Num)
	assert.Equal(t, 102.0, call(t, tbl, "percentile", closes, num(0.25)).Scalar.Num)
	assert.InDelta(t, 1.0, call(t, tbl, "correlation", closes, col(t, tbl, "open")).Scalar.Num, 1e-12)

	count := call(t, tbl, "count")
	assert.Equal(t, table.Int, count.Scalar.Kind)
	assert.Equal(t, int64(5), count.Scalar.Interface())

	last := call(t, tbl, "last", col(t, tbl, "volume"))
	assert.Equal(t, int64(1004), last.Scalar.Interface())

	_, err := Builtin().Call(tbl, "percentile", []table.Value{closes, num(50)})
	assert.Error(t, err)
}

func TestGroupAggregates(t *testing.T) {
	assert.Equal(t, []string{"max", "mean", "median", "min", "std", "sum"}, GroupAggregateNames())

	f, ok := GroupAggregate("mean")
	require.True(t, ok)
	assert.Equal(t, 2.0, f([]float64{1, 2, 3}))

	_, ok = GroupAggregate("percentile")
	assert.False(t, ok)

	flags := map[string]bool{}
	for _, info := range Builtin().Catalogue() {
		flags[info.Name] = info.GroupAggregate
	}
	assert.True(t, flags["count"])
	assert.True(t, flags["median"])
	assert.False(t, flags["percentile"])
	assert.False(t, flags["rsi"])
}

func TestPatternFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(6))

	streak := call(t, tbl, "streak", call(t, tbl, "green"))
	assert.Equal(t, table.Int, streak.Column.Kind())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, streak.Column.Floats())

	count := call(t, tbl, "rolling_count", call(t, tbl, "green"), num(3)).Column.Floats()
	assert.True(t, math.IsNaN(count[1]))
	assert.Equal(t, 3.0, count[5])

	t.Run("pivot forms", func(t *testing.T) {
		data := []float64{1, 3, 2, 5, 4, 3, 6}
		frame := table.NewFrame(len(data))
		require.NoError(t, frame.Set("x", table.NewFloat(data)))

		hi := call(t, frame, "pivothigh", col(t, frame, "x"), num(1), num(1)).Column.Floats()
		assert.Equal(t, 3.0, hi[2])
		assert.Equal(t, 5.0, hi[4])

		_, err := Builtin().Call(frame, "pivothigh", []table.Value{num(1), num(1), num(1)})
		var arity *ArityError
		assert.ErrorAs(t, err, &arity)

		_, err = Builtin().Call(frame, "pivotlow", nil)
		assert.Error(t, err, "default form needs a low column")
	})
}

func TestConvenienceFunctions(t *testing.T) {
	tbl := table.FromBars(makeBars(3))

	gap := call(t, tbl, "gap").Column.Floats()
	assert.True(t, math.IsNaN(gap[0]))
	assert.Equal(t, 0.0, gap[1])

	assert.Equal(t, []float64{3, 3, 3}, call(t, tbl, "range").Column.Floats())
	assert.Equal(t, []float64{1, 1, 1}, call(t, tbl, "body").Column.Floats())
	assert.Equal(t, []bool{false, false, false}, call(t, tbl, "red").Column.Bools())

	pct := call(t, tbl, "change_pct", col(t, tbl, "close")).Column.Floats()
	assert.InDelta(t, 100.0/101, pct[1], 1e-12)
}

func TestIndicatorShapes(t *testing.T) {
	tbl := table.FromBars(makeBars(60))
	closes := col(t, tbl, "close")

	for _, tc := range []struct {
		name string
		args []table.Value
	}{
		{"rsi", []table.Value{closes}},
		{"atr", nil},
		{"adx", []table.Value{num(5)}},
		{"supertrend_dir", nil},
		{"sar", nil},
		{"bbands_width", []table.Value{closes}},
		{"kc_width", nil},
		{"macd_hist", []table.Value{closes}},
		{"vwap_day", nil},
		{"obv", nil},
		{"mfi", nil},
		{"donchian_upper", []table.Value{num(10)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := call(t, tbl, tc.name, tc.args...)
			require.True(t, v.IsColumn())
			assert.Equal(t, 60, v.Column.Len())
		})
	}

	rsi := call(t, tbl, "rsi", closes).Column.Floats()
	assert.Equal(t, 100.0, rsi[59], "strictly rising closes")
}

func TestSessionFunctions(t *testing.T) {
	bars := makeBars(4)
	// Bars 2 and 3 start a new session after a two hour pause.
	bars[2].Timestamp = bars[1].Timestamp.Add(2 * time.Hour)
	bars[3].Timestamp = bars[2].Timestamp.Add(time.Minute)
	tbl := table.FromBars(bars)

	high := call(t, tbl, "session_high").Column.Floats()
	assert.Equal(t, []float64{103, 103, 105, 105}, high)
	open := call(t, tbl, "session_open").Column.Floats()
	assert.Equal(t, []float64{100, 100, 102, 102}, open)

	t.Run("explicit ids win over gaps", func(t *testing.T) {
		tagged, err := tbl.WithSessionIDs([]int64{7, 7, 7, 8})
		require.NoError(t, err)
		closes := call(t, tagged, "session_close").Column.Floats()
		assert.Equal(t, []float64{103, 103, 103, 104}, closes)
	})

	t.Run("configured gap", func(t *testing.T) {
		r := Builtin(WithSessionGap(3 * time.Hour))
		v, err := r.Call(tbl, "session_low", nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{99, 99, 99, 99}, v.Column.Floats())
	})
}

func TestSessionIDs_GapHeuristic(t *testing.T) {
	gap := 90 * time.Minute
	at := func(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.UTC) }
	build := func(ts ...time.Time) *table.Table {
		bars := make([]models.OHLCV, len(ts))
		for i, x := range ts {
			bars[i] = models.OHLCV{Timestamp: x, Open: 1, High: 1, Low: 1, Close: 1}
		}
		return table.FromBars(bars)
	}

	t.Run("short halt merges sessions", func(t *testing.T) {
		tbl := build(at(2, 16, 59), at(2, 18, 0), at(2, 18, 1))
		assert.Equal(t, []int64{0, 0, 0}, SessionIDs(tbl, gap))
	})

	t.Run("long intraday hole splits a session", func(t *testing.T) {
		tbl := build(at(2, 10, 0), at(2, 12, 0), at(2, 12, 1))
		assert.Equal(t, []int64{0, 1, 1}, SessionIDs(tbl, gap))
	})

	t.Run("configured sessions override", func(t *testing.T) {
		tbl, err := build(at(2, 16, 59), at(2, 18, 0), at(2, 18, 1)).WithSessionIDs([]int64{1, 2, 2})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 2}, SessionIDs(tbl, gap))
	})
}
