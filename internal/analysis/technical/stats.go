package technical

import (
	"math"
	"sort"
)

func sum(data []float64) float64 {
	s := 0.0
	for _, v := range data {
		s += v
	}
	return s
}

func avg(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return sum(data) / float64(len(data))
}

func stddev(data []float64, mean float64, ddof int) float64 {
	n := len(data) - ddof
	if n <= 0 {
		return math.NaN()
	}
	sumSq := 0.0
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// dropNaN returns the non-NaN values of data.
func dropNaN(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Sum adds the non-NaN values; an empty input sums to 0.
func Sum(data []float64) float64 { return sum(dropNaN(data)) }

// Mean averages the non-NaN values; NaN when none.
func Mean(data []float64) float64 { return avg(dropNaN(data)) }

// Max returns the largest non-NaN value; NaN when none.
func Max(data []float64) float64 {
	vals := dropNaN(data)
	if len(vals) == 0 {
		return math.NaN()
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m
}

// Min returns the smallest non-NaN value; NaN when none.
func Min(data []float64) float64 {
	vals := dropNaN(data)
	if len(vals) == 0 {
		return math.NaN()
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m
}

// Std returns the sample standard deviation (N-1) of the non-NaN values.
func Std(data []float64) float64 {
	vals := dropNaN(data)
	return stddev(vals, avg(vals), 1)
}

// Median returns the middle of the non-NaN values.
func Median(data []float64) float64 {
	return Quantile(data, 0.5)
}

// Quantile returns the q-th quantile (0..1) of the non-NaN values using
// linear interpolation between closest ranks.
func Quantile(data []float64, q float64) float64 {
	vals := dropNaN(data)
	if len(vals) == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	sort.Float64s(vals)
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return vals[lo] + (vals[hi]-vals[lo])*frac
}

// Correlation returns the Pearson correlation over pairs where both values
// are present.
func Correlation(a, b []float64) float64 {
	var xs, ys []float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	mx, my := avg(xs), avg(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	return cov / math.Sqrt(vx*vy)
}
