package technical

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series holds synthetic OHLCV columns for testing.
type series struct {
	open, high, low, close, volume []float64
}

// makeSeries generates a steadily trending synthetic series.
func makeSeries(n int, basePrice, trend float64) series {
	s := series{
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	price := basePrice
	for i := 0; i < n; i++ {
		open := price
		closeP := open + trend
		high, low := open+5, open-5
		if closeP > open {
			high = closeP + 3
		} else {
			low = closeP - 3
		}
		s.open[i], s.high[i], s.low[i], s.close[i] = open, high, low, closeP
		s.volume[i] = 1_000_000 + float64(i*10_000)
		price = closeP
	}
	return s
}

func seq(from, to float64) []float64 {
	var out []float64
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}

func TestRMASeedIsSimpleMean(t *testing.T) {
	data := seq(1, 10)
	out := RMA(data, 5)

	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(out[i]), "bar %d should be warm-up", i)
	}
	assert.InDelta(t, 3.0, out[4], 1e-12)
	assert.InDelta(t, 3.6, out[5], 1e-12)
}

func TestRMAPeriodOneIsIdentity(t *testing.T) {
	data := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	assert.Equal(t, data, RMA(data, 1))
}

func TestRMACarriesForwardOverNaN(t *testing.T) {
	data := []float64{math.NaN(), 2, 4, math.NaN(), 6}
	out := RMA(data, 2)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 3.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.5, out[4], 1e-12)
}

func TestEMADivergesFromRMA(t *testing.T) {
	data := seq(1, 30)
	ema := EMA(data, 5)
	rma := RMA(data, 5)

	assert.Equal(t, 1.0, ema[0], "EMA is seeded with the first value")
	assert.True(t, math.IsNaN(rma[0]))
	assert.Greater(t, math.Abs(ema[29]-rma[29]), 1.0)
}

func TestSMAAndRollingNaN(t *testing.T) {
	data := []float64{1, 2, 3, math.NaN(), 5, 6, 7}
	out := SMA(data, 3)

	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.True(t, math.IsNaN(out[3]))
	assert.True(t, math.IsNaN(out[5]), "window containing NaN")
	assert.InDelta(t, 6.0, out[6], 1e-12)
}

func TestWMAAndHMA(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	w := WMA(data, 3)
	// (2*1 + 3*2 + 4*3) / 6
	assert.InDelta(t, 20.0/6, w[3], 1e-12)

	h := HMA(seq(1, 20), 9)
	assert.True(t, math.IsNaN(h[9]))
	// A linear series is tracked with the Hull lag correction.
	assert.InDelta(t, 20.0, h[19], 0.5)
}

func TestRSIBoundaries(t *testing.T) {
	up := RSI(seq(1, 40), 14)
	falling := make([]float64, 40)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	down := RSI(falling, 14)

	assert.True(t, math.IsNaN(up[12]))
	for i := 13; i < 40; i++ {
		assert.Equal(t, 100.0, up[i])
		assert.InDelta(t, 0.0, down[i], 1e-9)
	}
}

func TestRSIUptrendIsHigh(t *testing.T) {
	s := makeSeries(50, 100, 1.5)
	vals := RSI(s.close, 14)
	require.Len(t, vals, 50)
	assert.Greater(t, vals[49], 50.0)
}

func TestBollingerUsesPopulationStd(t *testing.T) {
	data := []float64{1, 2, 4}
	b := BollingerBands(data, 3, 2)

	mean := 7.0 / 3
	popStd := math.Sqrt(42.0 / 27)
	sampleStd := math.Sqrt(42.0 / 18)
	assert.InDelta(t, mean+2*popStd, b.Upper[2], 1e-12)
	assert.InDelta(t, mean-2*popStd, b.Lower[2], 1e-12)
	assert.NotEqual(t, mean+2*sampleStd, b.Upper[2])

	sample := RollingStd(data, 3, 1)
	assert.InDelta(t, sampleStd, sample[2], 1e-12)
}

func TestTrueRangeFirstBar(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 11, 7}
	closes := []float64{9, 11.5, 8}
	tr := TrueRange(high, low, closes)

	assert.Equal(t, 2.0, tr[0])
	assert.Equal(t, 3.0, tr[1]) // |12 - 9|
	assert.Equal(t, 4.5, tr[2]) // |7 - 11.5|

	atr := ATR(high, low, closes, 2)
	assert.True(t, math.IsNaN(atr[0]))
	assert.InDelta(t, 2.5, atr[1], 1e-12)
	assert.InDelta(t, 3.5, atr[2], 1e-12)
}

func TestADXDoubleSmoothingWarmup(t *testing.T) {
	s := makeSeries(40, 100, 2)
	d := DirectionalMovement(s.high, s.low, s.close, 5)

	assert.True(t, math.IsNaN(d.PlusDI[3]))
	assert.False(t, math.IsNaN(d.PlusDI[4]))
	assert.True(t, math.IsNaN(d.ADX[7]))
	assert.False(t, math.IsNaN(d.ADX[8]))
	assert.Greater(t, d.PlusDI[39], d.MinusDI[39])
	assert.Greater(t, d.ADX[39], 25.0)
}

func TestSuperTrendFollowsUptrend(t *testing.T) {
	s := makeSeries(100, 100, 2)
	value, dir := SuperTrend(s.high, s.low, s.close, 10, 3)

	assert.True(t, math.IsNaN(dir[0]))
	first := -1
	for i, d := range dir {
		if !math.IsNaN(d) {
			first = i
			break
		}
	}
	require.GreaterOrEqual(t, first, 0)
	assert.Equal(t, -1.0, dir[first], "first defined bar starts in a downtrend")
	assert.Equal(t, 1.0, dir[99])
	assert.Less(t, value[99], s.close[99])
}

func TestParabolicSARStaysBelowRisingLows(t *testing.T) {
	s := makeSeries(30, 100, 2)
	sar := ParabolicSAR(s.high, s.low, s.close, 0.02, 0.2)

	require.Len(t, sar, 30)
	assert.Equal(t, s.low[0], sar[0])
	for i := 1; i < 30; i++ {
		assert.LessOrEqual(t, sar[i], s.low[i], "bar %d", i)
	}
	assert.True(t, math.IsNaN(ParabolicSAR([]float64{1}, []float64{1}, []float64{1}, 0.02, 0.2)[0]))
}

func TestParabolicSARFlipsOnReversal(t *testing.T) {
	high := []float64{10, 11, 12, 13, 9, 8}
	low := []float64{9, 10, 11, 12, 7, 6}
	closes := []float64{9.5, 10.5, 11.5, 12.5, 7.5, 6.5}
	sar := ParabolicSAR(high, low, closes, 0.02, 0.2)

	// Bar 4 breaks below the SAR: it resets to the prior extreme point.
	assert.Equal(t, 13.0, sar[4])
	assert.Greater(t, sar[5], high[5])
}

func TestPivotsConfirmAfterRightBars(t *testing.T) {
	data := []float64{1, 3, 2, 5, 4, 3, 6}

	hi := PivotHigh(data, 1, 1)
	assert.Equal(t, 3.0, hi[2])
	assert.Equal(t, 5.0, hi[4])
	for _, i := range []int{0, 1, 3, 5, 6} {
		assert.True(t, math.IsNaN(hi[i]), "bar %d", i)
	}

	lo := PivotLow(data, 1, 1)
	assert.Equal(t, 2.0, lo[3])
	assert.Equal(t, 3.0, lo[6])
}

func TestStreakBarsSinceValueWhen(t *testing.T) {
	cond := []bool{false, true, true, false, true, true, true}

	assert.Equal(t, []float64{0, 1, 2, 0, 1, 2, 3}, Streak(cond))

	bs := BarsSince(cond)
	assert.True(t, math.IsNaN(bs[0]))
	assert.Equal(t, []float64{0, 0, 1, 0, 0, 0}, bs[1:])

	src := []float64{10, 11, 12, 13, 14, 15, 16}
	vw := ValueWhen(cond, src, 1)
	assert.True(t, math.IsNaN(vw[1]))
	assert.Equal(t, 11.0, vw[2])
	assert.Equal(t, 12.0, vw[4])
}

func TestCrossoverAndCandles(t *testing.T) {
	a := []float64{1, 2, 3, 1}
	b := []float64{2, 2, 2, 2}
	assert.Equal(t, []bool{false, false, true, false}, Crossover(a, b))
	assert.Equal(t, []bool{false, false, false, true}, Crossunder(a, b))

	open := []float64{10, 10}
	high := []float64{12, 11}
	low := []float64{8, 9}
	closes := []float64{10.1, 11}
	assert.Equal(t, []bool{true, false}, Doji(open, high, low, closes, 0.1))
	assert.Equal(t, []bool{false, true}, InsideBar(high, low))
}

func TestCumulativeAndRank(t *testing.T) {
	data := []float64{1, math.NaN(), 3, 2}
	cs := CumSum(data)
	assert.Equal(t, 1.0, cs[0])
	assert.True(t, math.IsNaN(cs[1]))
	assert.Equal(t, 4.0, cs[2])
	assert.Equal(t, 6.0, cs[3])

	cm := CumMax(data)
	assert.Equal(t, 3.0, cm[3])

	r := Rank([]float64{10, 20, 20, 5})
	assert.Equal(t, []float64{0.5, 0.875, 0.875, 0.25}, r)
}

func TestAggregates(t *testing.T) {
	data := []float64{4, 1, math.NaN(), 3, 2}
	assert.Equal(t, 10.0, Sum(data))
	assert.Equal(t, 2.5, Mean(data))
	assert.Equal(t, 2.5, Median(data))
	assert.Equal(t, 4.0, Max(data))
	assert.Equal(t, 1.0, Min(data))
	assert.InDelta(t, math.Sqrt(5.0/3), Std(data), 1e-12)
	assert.InDelta(t, 1.75, Quantile(data, 0.25), 1e-12)
	assert.Equal(t, 0.0, Sum(nil))
	assert.True(t, math.IsNaN(Mean(nil)))

	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, Correlation([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
}

func TestVolumeIndicators(t *testing.T) {
	closes := []float64{10, 11, 10, 10}
	volume := []float64{100, 200, 300, 400}
	assert.Equal(t, []float64{0, 200, -100, -100}, OBV(closes, volume))

	high := []float64{12, 12}
	low := []float64{8, 12}
	cl := []float64{11, 12}
	ad := ADLine(high, low, cl, []float64{100, 100})
	assert.InDelta(t, 50.0, ad[0], 1e-12)
	assert.InDelta(t, 50.0, ad[1], 1e-12, "zero-range bar adds nothing")

	day1 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	ts := []time.Time{day1, day1.Add(time.Minute), day1.Add(24 * time.Hour)}
	vw := VWAPDaily(ts, []float64{3, 6, 9}, []float64{3, 6, 9}, []float64{3, 6, 9}, []float64{1, 1, 1})
	assert.Equal(t, []float64{3, 4.5, 9}, vw)
}

func TestOscillatorRanges(t *testing.T) {
	s := makeSeries(60, 100, 1)
	k := StochK(s.high, s.low, s.close, 14)
	w := WilliamsR(s.high, s.low, s.close, 14)
	m := MFI(s.high, s.low, s.close, s.volume, 14)
	for i := 14; i < 60; i++ {
		assert.GreaterOrEqual(t, k[i], 0.0)
		assert.LessOrEqual(t, k[i], 100.0)
		assert.LessOrEqual(t, w[i], 0.0)
		assert.GreaterOrEqual(t, w[i], -100.0)
		assert.Equal(t, 100.0, m[i], "no negative money flow in a steady uptrend")
	}
	assert.True(t, math.IsNaN(CCI(s.high, s.low, s.close, 20)[18]))
}
