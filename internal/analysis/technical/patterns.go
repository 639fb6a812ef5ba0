package technical

import "math"

// ── Candle geometry ──

// Body returns close - open.
func Body(open, closes []float64) []float64 {
	return Sub(closes, open)
}

// UpperWick returns high - max(open, close).
func UpperWick(open, high, closes []float64) []float64 {
	out := make([]float64, len(open))
	for i := range out {
		out[i] = high[i] - math.Max(open[i], closes[i])
	}
	return out
}

// LowerWick returns min(open, close) - low.
func LowerWick(open, low, closes []float64) []float64 {
	out := make([]float64, len(open))
	for i := range out {
		out[i] = math.Min(open[i], closes[i]) - low[i]
	}
	return out
}

// Doji flags bars whose body is smaller than threshold × range.
func Doji(open, high, low, closes []float64, threshold float64) []bool {
	out := make([]bool, len(open))
	for i := range out {
		body := math.Abs(closes[i] - open[i])
		totalRange := high[i] - low[i]
		out[i] = body/totalRange < threshold
	}
	return out
}

// InsideBar flags bars whose range is strictly inside the previous bar's.
func InsideBar(high, low []float64) []bool {
	out := make([]bool, len(high))
	for i := 1; i < len(high); i++ {
		out[i] = high[i] < high[i-1] && low[i] > low[i-1]
	}
	return out
}

// OutsideBar flags bars whose range strictly engulfs the previous bar's.
func OutsideBar(high, low []float64) []bool {
	out := make([]bool, len(high))
	for i := 1; i < len(high); i++ {
		out[i] = high[i] > high[i-1] && low[i] < low[i-1]
	}
	return out
}

// ── Signal scans ──

// Crossover flags bars where a moves from at-or-below b to above it.
func Crossover(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a); i++ {
		out[i] = a[i-1] <= b[i-1] && a[i] > b[i]
	}
	return out
}

// Crossunder flags bars where a moves from at-or-above b to below it.
func Crossunder(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a); i++ {
		out[i] = a[i-1] >= b[i-1] && a[i] < b[i]
	}
	return out
}

// Streak counts consecutive true values, resetting to 0 on false.
func Streak(cond []bool) []float64 {
	out := make([]float64, len(cond))
	count := 0
	for i, c := range cond {
		if c {
			count++
		} else {
			count = 0
		}
		out[i] = float64(count)
	}
	return out
}

// BarsSince counts bars since cond was last true; NaN until it first is.
func BarsSince(cond []bool) []float64 {
	out := nanSlice(len(cond))
	last := -1
	for i, c := range cond {
		if c {
			last = i
		}
		if last >= 0 {
			out[i] = float64(i - last)
		}
	}
	return out
}

// ValueWhen returns, on each bar, the value of src on the bar where cond was
// true for the occurrence-th most recent time (0 = latest, including the
// current bar). NaN until enough occurrences have been seen.
func ValueWhen(cond []bool, src []float64, occurrence int) []float64 {
	out := nanSlice(len(cond))
	if occurrence < 0 {
		return out
	}
	var hits []int
	for i, c := range cond {
		if c {
			hits = append(hits, i)
		}
		if k := len(hits) - 1 - occurrence; k >= 0 {
			out[i] = src[hits[k]]
		}
	}
	return out
}
