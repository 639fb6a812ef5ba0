// Package technical implements technical analysis indicators over plain
// float64 series. Every function returns a slice the same length as its
// input, using NaN for warm-up bars and undefined values, so results can be
// attached directly as table columns.
package technical

import (
	"math"
	"time"
)

// RSI calculates the Relative Strength Index with Wilder's smoothing.
// Returns 100 when the smoothed loss is exactly zero.
func RSI(data []float64, period int) []float64 {
	n := len(data)
	delta := Diff(data, 1)
	gain := make([]float64, n)
	loss := make([]float64, n)
	for i, d := range delta {
		if d > 0 {
			gain[i] = d
		} else if d < 0 {
			loss[i] = -d
		}
	}
	avgGain := RMA(gain, period)
	avgLoss := RMA(loss, period)

	rsi := make([]float64, n)
	for i := range rsi {
		if avgLoss[i] == 0 {
			rsi[i] = 100
			continue
		}
		rsi[i] = 100 - 100/(1+avgGain[i]/avgLoss[i])
	}
	return rsi
}

// MACD returns EMA(fast) - EMA(slow).
func MACD(data []float64, fast, slow int) []float64 {
	return Sub(EMA(data, fast), EMA(data, slow))
}

// MACDSignal returns the EMA of the MACD line.
func MACDSignal(data []float64, fast, slow, signal int) []float64 {
	return EMA(MACD(data, fast, slow), signal)
}

// MACDHist returns MACD - signal.
func MACDHist(data []float64, fast, slow, signal int) []float64 {
	line := MACD(data, fast, slow)
	return Sub(line, EMA(line, signal))
}

// Bands holds an upper/middle/lower envelope.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands computes SMA ± mult × population standard deviation.
func BollingerBands(data []float64, period int, mult float64) Bands {
	middle := SMA(data, period)
	std := RollingStd(data, period, 0)
	b := Bands{
		Upper:  make([]float64, len(data)),
		Middle: middle,
		Lower:  make([]float64, len(data)),
	}
	for i := range data {
		b.Upper[i] = middle[i] + mult*std[i]
		b.Lower[i] = middle[i] - mult*std[i]
	}
	return b
}

// BollingerWidth returns (upper - lower) / middle × 100.
func BollingerWidth(data []float64, period int, mult float64) []float64 {
	b := BollingerBands(data, period, mult)
	out := make([]float64, len(data))
	for i := range out {
		out[i] = (b.Upper[i] - b.Lower[i]) / b.Middle[i] * 100
	}
	return out
}

// BollingerPctB returns where each value sits between the bands
// (0 = lower, 1 = upper).
func BollingerPctB(data []float64, period int, mult float64) []float64 {
	b := BollingerBands(data, period, mult)
	out := make([]float64, len(data))
	for i := range out {
		out[i] = (data[i] - b.Lower[i]) / (b.Upper[i] - b.Lower[i])
	}
	return out
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close and reduces to high-low.
func TrueRange(high, low, closes []float64) []float64 {
	tr := make([]float64, len(high))
	for i := range high {
		hl := high[i] - low[i]
		if i == 0 || math.IsNaN(closes[i-1]) {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - closes[i-1])
		lc := math.Abs(low[i] - closes[i-1])
		tr[i] = nanMax(hl, hc, lc)
	}
	return tr
}

// ATR calculates Average True Range as Wilder's smoothing of True Range.
func ATR(high, low, closes []float64, period int) []float64 {
	return RMA(TrueRange(high, low, closes), period)
}

// NATR returns ATR as a percentage of close.
func NATR(high, low, closes []float64, period int) []float64 {
	atr := ATR(high, low, closes, period)
	out := make([]float64, len(atr))
	for i := range out {
		out[i] = atr[i] / closes[i] * 100
	}
	return out
}

// Keltner computes EMA(close, period) ± mult × ATR(atrPeriod).
func Keltner(high, low, closes []float64, period, atrPeriod int, mult float64) Bands {
	middle := EMA(closes, period)
	atr := ATR(high, low, closes, atrPeriod)
	b := Bands{
		Upper:  make([]float64, len(closes)),
		Middle: middle,
		Lower:  make([]float64, len(closes)),
	}
	for i := range closes {
		b.Upper[i] = middle[i] + mult*atr[i]
		b.Lower[i] = middle[i] - mult*atr[i]
	}
	return b
}

// KeltnerWidth returns (upper - lower) / middle.
func KeltnerWidth(high, low, closes []float64, period, atrPeriod int, mult float64) []float64 {
	b := Keltner(high, low, closes, period, atrPeriod, mult)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = (b.Upper[i] - b.Lower[i]) / b.Middle[i]
	}
	return out
}

// StochK returns the position of close within the high/low range of the
// last period bars, 0..100.
func StochK(high, low, closes []float64, period int) []float64 {
	lowest := RollingMin(low, period)
	highest := RollingMax(high, period)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = (closes[i] - lowest[i]) / (highest[i] - lowest[i]) * 100
	}
	return out
}

// StochD returns SMA(%K, smooth).
func StochD(high, low, closes []float64, period, smooth int) []float64 {
	return SMA(StochK(high, low, closes, period), smooth)
}

// CCI calculates the Commodity Channel Index using mean deviation.
func CCI(high, low, closes []float64, period int) []float64 {
	tp := TypicalPrice(high, low, closes)
	sma := SMA(tp, period)
	dev := RollingMeanDev(tp, period)
	out := make([]float64, len(tp))
	for i := range out {
		out[i] = (tp[i] - sma[i]) / (0.015 * dev[i])
	}
	return out
}

// WilliamsR returns Williams %R in the range -100..0.
func WilliamsR(high, low, closes []float64, period int) []float64 {
	highest := RollingMax(high, period)
	lowest := RollingMin(low, period)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = (highest[i] - closes[i]) / (highest[i] - lowest[i]) * -100
	}
	return out
}

// MFI calculates the Money Flow Index from rolling sums of positive and
// negative raw money flow.
func MFI(high, low, closes, volume []float64, period int) []float64 {
	tp := TypicalPrice(high, low, closes)
	direction := Diff(tp, 1)
	pos := make([]float64, len(tp))
	neg := make([]float64, len(tp))
	for i := range tp {
		flow := tp[i] * volume[i]
		if direction[i] > 0 {
			pos[i] = flow
		} else if direction[i] < 0 {
			neg[i] = flow
		}
	}
	posSum := RollingSum(pos, period)
	negSum := RollingSum(neg, period)
	out := make([]float64, len(tp))
	for i := range out {
		out[i] = 100 - 100/(1+posSum[i]/negSum[i])
	}
	return out
}

// ROC returns the percentage change over period bars.
func ROC(data []float64, period int) []float64 {
	prev := Shift(data, period)
	out := make([]float64, len(data))
	for i := range out {
		out[i] = (data[i] - prev[i]) / prev[i] * 100
	}
	return out
}

// TypicalPrice returns (high + low + close) / 3.
func TypicalPrice(high, low, closes []float64) []float64 {
	out := make([]float64, len(high))
	for i := range out {
		out[i] = (high[i] + low[i] + closes[i]) / 3
	}
	return out
}

// OBV calculates On Balance Volume: cumulative volume signed by the
// direction of the close change. The first bar contributes zero.
func OBV(closes, volume []float64) []float64 {
	signed := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			continue
		}
		d := closes[i] - closes[i-1]
		switch {
		case math.IsNaN(d):
			signed[i] = math.NaN()
		case d > 0:
			signed[i] = volume[i]
		case d < 0:
			signed[i] = -volume[i]
		}
	}
	return CumSum(signed)
}

// VWAPDaily calculates VWAP from typical price, resetting the accumulation
// at each calendar day of ts.
func VWAPDaily(ts []time.Time, high, low, closes, volume []float64) []float64 {
	tp := TypicalPrice(high, low, closes)
	out := make([]float64, len(tp))
	var cumPV, cumVol float64
	var day time.Time
	for i := range tp {
		d := truncateDay(ts[i])
		if i == 0 || !d.Equal(day) {
			day = d
			cumPV, cumVol = 0, 0
		}
		cumPV += tp[i] * volume[i]
		cumVol += volume[i]
		out[i] = cumPV / cumVol
	}
	return out
}

// ADLine calculates the Accumulation/Distribution line. Zero-range bars
// have a close location value of 0.
func ADLine(high, low, closes, volume []float64) []float64 {
	flow := make([]float64, len(high))
	for i := range high {
		clv := ((closes[i] - low[i]) - (high[i] - closes[i])) / (high[i] - low[i])
		if math.IsNaN(clv) || math.IsInf(clv, 0) {
			clv = 0
		}
		flow[i] = clv * volume[i]
	}
	return CumSum(flow)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nanMax returns the largest non-NaN argument, or NaN when all are NaN.
func nanMax(vals ...float64) float64 {
	m := math.NaN()
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}
