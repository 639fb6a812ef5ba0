package functions

import (
	"time"

	"github.com/seenimoa/barb/internal/table"
)

func registerTime(r *Registry) {
	r.registerGroup("time", []Spec{
		{Name: "year", Signature: "year()", Description: "e.g. 2024", MinArgs: 0, MaxArgs: 0, Fn: timePart("year", func(t time.Time) int { return t.Year() })},
		{Name: "quarter", Signature: "quarter()", Description: "1-4", MinArgs: 0, MaxArgs: 0, Fn: timePart("quarter", func(t time.Time) int { return (int(t.Month())-1)/3 + 1 })},
		{Name: "month", Signature: "month()", Description: "1-12", MinArgs: 0, MaxArgs: 0, Fn: timePart("month", func(t time.Time) int { return int(t.Month()) })},
		{Name: "date", Signature: "date(s?)", Description: "date() is the bar date; date('2024-01-15') is a date literal for comparison", MinArgs: 0, MaxArgs: 1, Fn: fnDate},
		{Name: "day_of_month", Signature: "day_of_month()", Description: "1-31", MinArgs: 0, MaxArgs: 0, Fn: timePart("day_of_month", func(t time.Time) int { return t.Day() })},
		{Name: "dayofweek", Signature: "dayofweek()", Description: "0=Monday, 4=Friday", MinArgs: 0, MaxArgs: 0, Fn: timePart("dayofweek", Weekday)},
		{Name: "hour", Signature: "hour()", Description: "0-23", MinArgs: 0, MaxArgs: 0, Fn: timePart("hour", func(t time.Time) int { return t.Hour() })},
		{Name: "minute", Signature: "minute()", Description: "0-59", MinArgs: 0, MaxArgs: 0, Fn: timePart("minute", func(t time.Time) int { return t.Minute() })},
	})
}

// Weekday returns the day of week with Monday as 0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func timePart(name string, part func(time.Time) int) Func {
	return func(t *table.Table, _ []table.Value) (table.Value, error) {
		if !t.HasIndex() {
			return table.Value{}, argTypeErrorf(name, "requires a timestamp index")
		}
		out := make([]float64, t.Len())
		for i, ts := range t.Index() {
			out[i] = float64(part(ts))
		}
		return intColumn(out), nil
	}
}

func fnDate(t *table.Table, args []table.Value) (table.Value, error) {
	if len(args) == 1 {
		v := args[0]
		if v.Type != table.ScalarValue || v.Scalar.Kind != table.String {
			return table.Value{}, argTypeErrorf("date", "expected a 'YYYY-MM-DD' string, got %s", v.TypeName())
		}
		d, err := time.Parse(table.DateLayout, v.Scalar.Str)
		if err != nil {
			return table.Value{}, argTypeErrorf("date", "invalid date '%s', expected YYYY-MM-DD", v.Scalar.Str)
		}
		return table.ScalarOf(table.DateScalar(d)), nil
	}

	if !t.HasIndex() {
		return table.Value{}, argTypeErrorf("date", "requires a timestamp index")
	}
	out := make([]time.Time, t.Len())
	for i, ts := range t.Index() {
		out[i] = table.DateScalar(ts).Date
	}
	return table.ColumnOf(table.NewDate(out)), nil
}
