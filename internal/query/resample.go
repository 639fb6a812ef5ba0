package query

import (
	"math"
	"time"

	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// BucketLabel returns the timestamp of the tf bar that ts falls into.
// Intraday and daily bars are labelled by their start; weekly bars by
// the Sunday that ends the week; monthly, quarterly and yearly bars by
// the last day of the period.
func BucketLabel(ts time.Time, tf models.Timeframe) time.Time {
	y, mon, d := ts.Date()
	loc := ts.Location()
	if m := tf.Minutes(); m > 0 {
		// Wall-clock bucket start: DST days are 23 or 25 hours long.
		mins := (ts.Hour()*60 + ts.Minute()) / m * m
		return time.Date(y, mon, d, mins/60, mins%60, 0, 0, loc)
	}
	day := midnight(ts)
	switch tf {
	case models.TimeframeWeekly:
		return day.AddDate(0, 0, (7-int(ts.Weekday()))%7)
	case models.TimeframeMonthly:
		return time.Date(y, mon+1, 0, 0, 0, 0, 0, loc)
	case models.TimeframeQuarterly:
		qEnd := ((int(mon)-1)/3 + 1) * 3
		return time.Date(y, time.Month(qEnd)+1, 0, 0, 0, 0, 0, loc)
	case models.TimeframeYearly:
		return time.Date(y, time.December, 31, 0, 0, 0, 0, loc)
	}
	return day
}

// Resample aggregates t into tf bars: open first, high max, low min,
// close last, volume sum, each ignoring missing values. Buckets with no
// open price are dropped rather than emitted as empty bars. Only the OHLCV
// columns survive. 1m (or an index-less table) is returned unchanged.
func Resample(t *table.Table, tf models.Timeframe) *table.Table {
	if tf == "" || tf == models.Timeframe1Min || !t.HasIndex() {
		return t
	}

	open, high := t.Floats(table.ColOpen), t.Floats(table.ColHigh)
	low, closes := t.Floats(table.ColLow), t.Floats(table.ColClose)
	volume := t.Floats(table.ColVolume)

	var out struct {
		index                   []time.Time
		open, high, low, closes []float64
		volume                  []float64
	}
	out.index = []time.Time{}
	flush := func(label time.Time, from, to int) {
		b := aggregateBar(open, high, low, closes, volume, from, to)
		if math.IsNaN(b[0]) {
			return
		}
		out.index = append(out.index, label)
		out.open = append(out.open, b[0])
		out.high = append(out.high, b[1])
		out.low = append(out.low, b[2])
		out.closes = append(out.closes, b[3])
		out.volume = append(out.volume, b[4])
	}

	n := t.Len()
	start := 0
	var label time.Time
	for i := 0; i < n; i++ {
		l := BucketLabel(t.Time(i), tf)
		if i == 0 {
			label = l
			continue
		}
		if !l.Equal(label) {
			flush(label, start, i)
			start, label = i, l
		}
	}
	if n > 0 {
		flush(label, start, n)
	}

	res := table.New(out.index)
	_ = res.Set(table.ColOpen, table.NewFloat(out.open))
	_ = res.Set(table.ColHigh, table.NewFloat(out.high))
	_ = res.Set(table.ColLow, table.NewFloat(out.low))
	_ = res.Set(table.ColClose, table.NewFloat(out.closes))
	_ = res.Set(table.ColVolume, table.NewInt(out.volume))
	return res
}

// aggregateBar reduces rows [from, to) to open, high, low, close, volume.
func aggregateBar(open, high, low, closes, volume []float64, from, to int) [5]float64 {
	nan := math.NaN()
	b := [5]float64{nan, nan, nan, nan, 0}
	for i := from; i < to; i++ {
		if open != nil && math.IsNaN(b[0]) && !math.IsNaN(open[i]) {
			b[0] = open[i]
		}
		if high != nil && !math.IsNaN(high[i]) && (math.IsNaN(b[1]) || high[i] > b[1]) {
			b[1] = high[i]
		}
		if low != nil && !math.IsNaN(low[i]) && (math.IsNaN(b[2]) || low[i] < b[2]) {
			b[2] = low[i]
		}
		if closes != nil && !math.IsNaN(closes[i]) {
			b[3] = closes[i]
		}
		if volume != nil && !math.IsNaN(volume[i]) {
			b[4] += volume[i]
		}
	}
	return b
}
