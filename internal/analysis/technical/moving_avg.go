package technical

import "math"

// SMA calculates the Simple Moving Average for the given period. The first
// period-1 outputs and any window containing NaN are NaN.
func SMA(data []float64, period int) []float64 {
	return RollingMean(data, period)
}

// EMA calculates the Exponential Moving Average with alpha = 2/(period+1).
// The recursion is seeded with the first non-NaN value, not an SMA, so
// output starts on the first bar. NaN inputs carry the previous output.
func EMA(data []float64, period int) []float64 {
	if period <= 0 {
		return nanSlice(len(data))
	}
	return emaAlpha(data, 2/float64(period+1))
}

// RMA is Wilder's smoothing, the base of RSI, ATR and ADX. The seed is the
// simple average of the first period non-NaN values; afterwards
// rma[t] = v[t]/period + (1 - 1/period) * rma[t-1]. NaN inputs after the
// seed carry the previous output forward.
func RMA(data []float64, period int) []float64 {
	result := nanSlice(len(data))
	if period <= 0 {
		return result
	}

	seedIdx := -1
	sum, count := 0.0, 0
	for i, v := range data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
		if count == period {
			seedIdx = i
			break
		}
	}
	if seedIdx < 0 {
		return result
	}
	result[seedIdx] = sum / float64(period)

	alpha := 1 / float64(period)
	for i := seedIdx + 1; i < len(data); i++ {
		if math.IsNaN(data[i]) {
			result[i] = result[i-1]
			continue
		}
		result[i] = alpha*data[i] + (1-alpha)*result[i-1]
	}
	return result
}

// WMA calculates the Weighted Moving Average for the given period.
// More recent values get linearly higher weight.
func WMA(data []float64, period int) []float64 {
	n := len(data)
	result := nanSlice(n)
	if period <= 0 {
		return result
	}
	denominator := float64(period*(period+1)) / 2

	for i := period - 1; i < n; i++ {
		weightedSum := 0.0
		for j := 0; j < period; j++ {
			weightedSum += data[i-period+1+j] * float64(j+1)
		}
		result[i] = weightedSum / denominator
	}
	return result
}

// HMA calculates the Hull Moving Average:
// WMA(2*WMA(n/2) - WMA(n), sqrt(n)).
func HMA(data []float64, period int) []float64 {
	if period <= 0 {
		return nanSlice(len(data))
	}
	half := max(period/2, 1)
	root := max(int(math.Sqrt(float64(period))), 1)

	wmaHalf := WMA(data, half)
	wmaFull := WMA(data, period)
	diff := make([]float64, len(data))
	for i := range diff {
		diff[i] = 2*wmaHalf[i] - wmaFull[i]
	}
	return WMA(diff, root)
}

// VWMA calculates the Volume Weighted Moving Average:
// sum(close*volume, n) / sum(volume, n).
func VWMA(closes, volume []float64, period int) []float64 {
	pv := make([]float64, len(closes))
	for i := range closes {
		pv[i] = closes[i] * volume[i]
	}
	return Div(RollingSum(pv, period), RollingSum(volume, period))
}

func emaAlpha(data []float64, alpha float64) []float64 {
	result := nanSlice(len(data))
	seeded := false
	for i, v := range data {
		switch {
		case !seeded && math.IsNaN(v):
		case !seeded:
			result[i] = v
			seeded = true
		case math.IsNaN(v):
			result[i] = result[i-1]
		default:
			result[i] = alpha*v + (1-alpha)*result[i-1]
		}
	}
	return result
}
