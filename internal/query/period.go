package query

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/table"
)

var errMalformedPeriod = errors.New("malformed period")

var (
	periodPattern = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)
	lastNPattern  = regexp.MustCompile(`^last_(\d+)$`)
)

const periodHelp = "Valid: 'YYYY', 'YYYY-MM', 'YYYY-MM-DD', 'YYYY-MM-DD:YYYY-MM-DD', " +
	"'last_year', 'last_month', 'last_week', 'last_N' (e.g. 'last_50')"

// FilterPeriod restricts t to a date window. Accepted forms:
//
//	2024, 2024-03, 2024-03-15     whole year, month or day
//	2024-01-01:2024-06-30         inclusive range; either side may be empty
//	last_year, last_month, last_week
//	last_N                        the last N distinct dates in the data
//
// Calendar bounds are wall-clock dates in the index's timezone. The period
// is validated even when t is empty, which is then returned unchanged.
func FilterPeriod(t *table.Table, period string) (*table.Table, error) {
	loc := time.UTC
	if t.Len() > 0 && t.HasIndex() {
		loc = t.Time(0).Location()
	}
	w, err := parsePeriod(period, loc)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 || !t.HasIndex() {
		return t, nil
	}

	last := t.Time(t.Len() - 1)
	switch w.relative {
	case "last_year":
		return since(t, addMonths(last, -12)), nil
	case "last_month":
		return since(t, addMonths(last, -1)), nil
	case "last_week":
		return since(t, last.AddDate(0, 0, -7)), nil
	case "last_n":
		return lastDates(t, w.n), nil
	}
	return t.Between(w.from, w.to), nil
}

// periodWindow is a parsed period: either absolute [from, to) bounds or
// a window relative to the last bar.
type periodWindow struct {
	from, to time.Time
	relative string
	n        int
}

func parsePeriod(period string, loc *time.Location) (periodWindow, error) {
	if start, end, ok := strings.Cut(period, ":"); ok {
		var w periodWindow
		if start != "" {
			lo, _, err := periodBounds(start, loc)
			if err != nil {
				return w, validationError("period", period, "Invalid period start '%s'. Use YYYY, YYYY-MM, or YYYY-MM-DD", start)
			}
			w.from = lo
		}
		if end != "" {
			_, hi, err := periodBounds(end, loc)
			if err != nil {
				return w, validationError("period", period, "Invalid period end '%s'. Use YYYY, YYYY-MM, or YYYY-MM-DD", end)
			}
			w.to = hi
		}
		return w, nil
	}

	switch period {
	case "last_year", "last_month", "last_week":
		return periodWindow{relative: period}, nil
	}
	if m := lastNPattern.FindStringSubmatch(period); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return periodWindow{}, validationError("period", period, "Invalid period '%s'. %s", period, periodHelp)
		}
		return periodWindow{relative: "last_n", n: n}, nil
	}

	from, to, err := periodBounds(period, loc)
	if err != nil {
		return periodWindow{}, validationError("period", period, "Invalid period '%s'. %s", period, periodHelp)
	}
	return periodWindow{from: from, to: to}, nil
}

// periodBounds returns the half-open [from, to) span of a YYYY, YYYY-MM or
// YYYY-MM-DD token, as wall-clock dates in loc.
func periodBounds(s string, loc *time.Location) (time.Time, time.Time, error) {
	if !periodPattern.MatchString(s) {
		return time.Time{}, time.Time{}, errMalformedPeriod
	}
	switch len(s) {
	case 4:
		from, err := time.ParseInLocation("2006", s, loc)
		return from, from.AddDate(1, 0, 0), err
	case 7:
		from, err := time.ParseInLocation("2006-01", s, loc)
		return from, from.AddDate(0, 1, 0), err
	default:
		from, err := time.ParseInLocation(table.DateLayout, s, loc)
		return from, from.AddDate(0, 0, 1), err
	}
}

// addMonths shifts t by n months, clamping the day to the target month's
// length (Mar 31 minus one month is Feb 29, not Mar 2).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, n, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, lastDay)-1)
}

func since(t *table.Table, cutoff time.Time) *table.Table {
	return t.Between(cutoff, time.Time{})
}

// lastDates keeps the rows of the last n distinct calendar dates.
func lastDates(t *table.Table, n int) *table.Table {
	var dates []time.Time
	for _, ts := range t.Index() {
		d := midnight(ts)
		if len(dates) == 0 || !dates[len(dates)-1].Equal(d) {
			dates = append(dates, d)
		}
	}
	if n == 0 || n >= len(dates) {
		return t
	}
	return since(t, dates[len(dates)-n])
}

func midnight(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
