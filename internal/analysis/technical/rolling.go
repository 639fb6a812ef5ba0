package technical

import (
	"math"
	"sort"
)

// nanSlice returns a slice of n NaNs.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rolling applies fn to every full window of the given period. Windows that
// are incomplete or contain NaN yield NaN.
func rolling(data []float64, period int, fn func(window []float64) float64) []float64 {
	n := len(data)
	result := nanSlice(n)
	if period <= 0 {
		return result
	}
	lastNaN := -1
	for i, v := range data {
		if math.IsNaN(v) {
			lastNaN = i
		}
		start := i - period + 1
		if start < 0 || lastNaN >= start {
			continue
		}
		result[i] = fn(data[start : i+1])
	}
	return result
}

// RollingSum returns the sum over each window.
func RollingSum(data []float64, period int) []float64 {
	return rolling(data, period, sum)
}

// RollingMean returns the mean over each window.
func RollingMean(data []float64, period int) []float64 {
	return rolling(data, period, avg)
}

// RollingMax returns the maximum over each window.
func RollingMax(data []float64, period int) []float64 {
	return rolling(data, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

// RollingMin returns the minimum over each window.
func RollingMin(data []float64, period int) []float64 {
	return rolling(data, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}

// RollingStd returns the standard deviation over each window. ddof selects
// the divisor: 0 for population (N), 1 for sample (N-1).
func RollingStd(data []float64, period, ddof int) []float64 {
	return rolling(data, period, func(w []float64) float64 {
		return stddev(w, avg(w), ddof)
	})
}

// RollingMeanDev returns the mean absolute deviation from the window mean.
func RollingMeanDev(data []float64, period int) []float64 {
	return rolling(data, period, func(w []float64) float64 {
		m := avg(w)
		d := 0.0
		for _, v := range w {
			d += math.Abs(v - m)
		}
		return d / float64(len(w))
	})
}

// Shift moves values k bars later (k > 0) or earlier (k < 0), filling with NaN.
func Shift(data []float64, k int) []float64 {
	n := len(data)
	result := nanSlice(n)
	for i := range data {
		j := i - k
		if j >= 0 && j < n {
			result[i] = data[j]
		}
	}
	return result
}

// Diff returns data[i] - data[i-k].
func Diff(data []float64, k int) []float64 {
	return Sub(data, Shift(data, k))
}

// CumSum returns the running sum. NaN positions stay NaN and are skipped.
func CumSum(data []float64) []float64 {
	return cumulative(data, func(acc, v float64) float64 { return acc + v })
}

// CumMax returns the running maximum.
func CumMax(data []float64) []float64 {
	return cumulative(data, math.Max)
}

// CumMin returns the running minimum.
func CumMin(data []float64) []float64 {
	return cumulative(data, math.Min)
}

func cumulative(data []float64, step func(acc, v float64) float64) []float64 {
	result := nanSlice(len(data))
	started := false
	acc := 0.0
	for i, v := range data {
		if math.IsNaN(v) {
			continue
		}
		if !started {
			acc = v
			started = true
		} else {
			acc = step(acc, v)
		}
		result[i] = acc
	}
	return result
}

// Sub returns a - b element-wise.
func Sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// Div returns a / b element-wise; division by zero yields NaN, or ±Inf when
// the numerator is non-zero.
func Div(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] / b[i]
	}
	return out
}

// Rank returns the percentile rank of each value (1/n .. 1), averaging ties.
// NaN values rank as NaN.
func Rank(data []float64) []float64 {
	type entry struct {
		v float64
		i int
	}
	valid := make([]entry, 0, len(data))
	for i, v := range data {
		if !math.IsNaN(v) {
			valid = append(valid, entry{v, i})
		}
	}
	sort.SliceStable(valid, func(a, b int) bool { return valid[a].v < valid[b].v })

	result := nanSlice(len(data))
	n := float64(len(valid))
	for start := 0; start < len(valid); {
		end := start
		for end+1 < len(valid) && valid[end+1].v == valid[start].v {
			end++
		}
		rank := (float64(start+1) + float64(end+1)) / 2
		for k := start; k <= end; k++ {
			result[valid[k].i] = rank / n
		}
		start = end + 1
	}
	return result
}
