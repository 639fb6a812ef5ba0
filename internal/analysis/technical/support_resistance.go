package technical

import "math"

// PivotHigh reports confirmed swing highs. Bar p is a pivot when data[p]
// is strictly greater than each of the left values before it and the right
// values after it. The pivot is only known right bars later, so its value
// is written on bar p+right; every other bar is NaN.
func PivotHigh(data []float64, left, right int) []float64 {
	return pivots(data, left, right, func(candidate, other float64) bool { return candidate > other })
}

// PivotLow reports confirmed swing lows, mirroring PivotHigh.
func PivotLow(data []float64, left, right int) []float64 {
	return pivots(data, left, right, func(candidate, other float64) bool { return candidate < other })
}

func pivots(data []float64, left, right int, beats func(candidate, other float64) bool) []float64 {
	n := len(data)
	out := nanSlice(n)
	if left < 0 || right < 0 {
		return out
	}
	for p := left; p+right < n; p++ {
		v := data[p]
		if math.IsNaN(v) {
			continue
		}
		isPivot := true
		for k := p - left; k <= p+right && isPivot; k++ {
			if k == p {
				continue
			}
			if math.IsNaN(data[k]) || !beats(v, data[k]) {
				isPivot = false
			}
		}
		if isPivot {
			out[p+right] = v
		}
	}
	return out
}
