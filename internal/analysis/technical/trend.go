package technical

import "math"

// DMI holds the Directional Movement System outputs.
type DMI struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// DirectionalMovement computes +DI, -DI and ADX. Directional movement and
// true range are Wilder-smoothed, then DX is smoothed again, so ADX needs
// roughly 2×period bars to warm up.
func DirectionalMovement(high, low, closes []float64, period int) DMI {
	n := len(high)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	tr := RMA(TrueRange(high, low, closes), period)
	plus := RMA(plusDM, period)
	minus := RMA(minusDM, period)

	d := DMI{PlusDI: make([]float64, n), MinusDI: make([]float64, n)}
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		d.PlusDI[i] = plus[i] / tr[i] * 100
		d.MinusDI[i] = minus[i] / tr[i] * 100
		dx[i] = math.Abs(d.PlusDI[i]-d.MinusDI[i]) / (d.PlusDI[i] + d.MinusDI[i]) * 100
	}
	d.ADX = RMA(dx, period)
	return d
}

// superTrendState is carried bar to bar by SuperTrend.
type superTrendState struct {
	upper, lower float64
	value        float64
	down         bool
}

// SuperTrend computes the ATR-based trend line and its direction
// (1 = uptrend, -1 = downtrend). Bands ratchet toward price and only
// loosen when the previous close crossed them. The first defined bar is a
// downtrend. Bars before ATR warms up are NaN.
func SuperTrend(high, low, closes []float64, period int, mult float64) (value, direction []float64) {
	n := len(closes)
	atr := ATR(high, low, closes, period)
	value = nanSlice(n)
	direction = nanSlice(n)
	if n == 0 {
		return value, direction
	}

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := range closes {
		hl2 := (high[i] + low[i]) / 2
		upper[i] = hl2 + mult*atr[i]
		lower[i] = hl2 - mult*atr[i]
	}

	var prev superTrendState
	havePrev := false
	for i := 1; i < n; i++ {
		if math.IsNaN(atr[i]) {
			continue
		}
		if !math.IsNaN(lower[i-1]) && !(lower[i] > lower[i-1] || closes[i-1] < lower[i-1]) {
			lower[i] = lower[i-1]
		}
		if !math.IsNaN(upper[i-1]) && !(upper[i] < upper[i-1] || closes[i-1] > upper[i-1]) {
			upper[i] = upper[i-1]
		}

		cur := superTrendState{upper: upper[i], lower: lower[i]}
		switch {
		case !havePrev || math.IsNaN(atr[i-1]):
			cur.down = true
		case prev.value == prev.upper:
			cur.down = !(closes[i] > upper[i])
		default:
			cur.down = closes[i] < lower[i]
		}
		if cur.down {
			cur.value = upper[i]
			direction[i] = -1
		} else {
			cur.value = lower[i]
			direction[i] = 1
		}
		value[i] = cur.value
		prev, havePrev = cur, true
	}
	return value, direction
}

// sarState is carried bar to bar by ParabolicSAR.
type sarState struct {
	long bool
	af   float64
	ep   float64
	sar  float64
}

// ParabolicSAR computes Wilder's Parabolic Stop and Reverse. The initial
// direction comes from the first two closes; the acceleration factor grows
// by accel on each new extreme up to maxAccel, and the SAR never
// penetrates the previous two bars.
func ParabolicSAR(high, low, closes []float64, accel, maxAccel float64) []float64 {
	n := len(closes)
	result := nanSlice(n)
	if n < 2 {
		return result
	}

	s := sarState{long: closes[1] >= closes[0], af: accel}
	if s.long {
		s.sar, s.ep = low[0], high[0]
	} else {
		s.sar, s.ep = high[0], low[0]
	}
	result[0] = s.sar

	for i := 1; i < n; i++ {
		sar := s.sar + s.af*(s.ep-s.sar)
		if s.long {
			sar = math.Min(sar, low[i-1])
			if i >= 2 {
				sar = math.Min(sar, low[i-2])
			}
		} else {
			sar = math.Max(sar, high[i-1])
			if i >= 2 {
				sar = math.Max(sar, high[i-2])
			}
		}

		switch {
		case s.long && low[i] < sar:
			s.long = false
			sar, s.ep, s.af = s.ep, low[i], accel
		case !s.long && high[i] > sar:
			s.long = true
			sar, s.ep, s.af = s.ep, high[i], accel
		case s.long && high[i] > s.ep:
			s.ep = high[i]
			s.af = math.Min(s.af+accel, maxAccel)
		case !s.long && low[i] < s.ep:
			s.ep = low[i]
			s.af = math.Min(s.af+accel, maxAccel)
		}
		s.sar = sar
		result[i] = sar
	}
	return result
}
