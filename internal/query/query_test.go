package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// ranges is the high-low spread of each bar built by dailyTable.
var ranges = []float64{5, 4, 6, 7, 3, 8, 9, 2, 5, 1}

// dailyTable builds one bar per day from Monday 2024-01-01 with
// low 100 and high 100+range.
func dailyTable(rs []float64) *table.Table {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.OHLCV, len(rs))
	for i, r := range rs {
		bars[i] = models.OHLCV{
			Timestamp: start.AddDate(0, 0, i),
			Open:      100,
			High:      100 + r,
			Low:       100,
			Close:     100 + r/2,
			Volume:    int64(1000 + i),
		}
	}
	return table.FromBars(bars)
}

func minuteBar(ts time.Time, o, h, l, c float64, v int64) models.OHLCV {
	return models.OHLCV{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func execute(t *testing.T, src string, tbl *table.Table) *Response {
	t.Helper()
	q, err := Decode([]byte(src))
	require.NoError(t, err)
	resp, err := NewExecutor(functions.Builtin()).Execute(q, tbl, nil)
	require.NoError(t, err)
	return resp
}

func executeErr(t *testing.T, src string, tbl *table.Table) *Error {
	t.Helper()
	q, err := Decode([]byte(src))
	require.NoError(t, err)
	_, err = NewExecutor(functions.Builtin()).Execute(q, tbl, nil)
	require.Error(t, err)
	qe, ok := err.(*Error)
	require.True(t, ok, "want *Error, got %T", err)
	return qe
}

func cell(t *testing.T, r Record, key string) any {
	t.Helper()
	v, ok := r.Get(key)
	require.True(t, ok, "missing %q in %v", key, r.Keys())
	return v
}

// ── Decode ──

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"not an object", `[1]`, "query must be a JSON object"},
		{"unknown field", `{"foo": 1, "bar": 2}`, "Unknown fields: bar, foo. Valid: columns, from, group_by, limit, map, period, select, session, sort, steps, where"},
		{"bad timeframe", `{"from": "2m"}`, "Invalid timeframe '2m'"},
		{"zero limit", `{"limit": 0}`, "limit must be a positive integer"},
		{"fractional limit", `{"limit": 1.5}`, "limit must be a positive integer"},
		{"string limit", `{"limit": "3"}`, "limit must be a positive integer"},
		{"map array", `{"map": ["a"]}`, "map must be an object {name: expression}"},
		{"where number", `{"where": 1}`, "where must be a string"},
		{"empty steps", `{"steps": []}`, "steps must be a non-empty array"},
		{"steps and flat", `{"steps": [{"where": "true"}], "where": "true"}`, "steps cannot be combined with top-level where"},
		{"scope in later step", `{"steps": [{"from": "daily"}, {"period": "2024"}]}`, "steps[1]: period is only allowed in the first step"},
		{"unknown step field", `{"steps": [{"columns": ["x"]}]}`, "Unknown fields in steps[0]: columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.src))
			require.Error(t, err)
			qe := AsError(err)
			assert.Equal(t, TypeValidation, qe.Type)
			assert.Equal(t, "validate", qe.Step)
			assert.Contains(t, qe.Message, tt.want)
		})
	}
}

func TestDecode_KeepsMapOrder(t *testing.T) {
	q := MustDecode(`{"map": {"z": "close", "a": "open", "m": {"expression": "high"}, "n": 5}}`)
	assert.Equal(t, []string{"z", "a", "m", "n"}, q.Map.Names())

	expr, ok := q.Map.Expr("m")
	assert.True(t, ok)
	assert.Equal(t, "high", expr)

	_, ok = q.Map.Expr("n")
	assert.False(t, ok)
}

func TestDecode_Select(t *testing.T) {
	q := MustDecode(`{"select": "mean(close), percentile(close, 0.9)"}`)
	assert.Equal(t, []string{"mean(close)", "percentile(close, 0.9)"}, q.Select.Terms)
	assert.True(t, q.Select.Multi())

	q = MustDecode(`{"select": ["count()"]}`)
	assert.True(t, q.Select.Multi())

	q = MustDecode(`{"select": "count()", "group_by": "weekday"}`)
	assert.False(t, q.Select.Multi())
	assert.Equal(t, []string{"weekday"}, q.GroupBy)
}

// ── End to end ──

func TestExecute_NarrowRange7(t *testing.T) {
	const nr7 = `{"from": "daily", "map": {"range": "high - low"}, "where": "range == rolling_min(range, 7)", "select": "count()"}`

	short := execute(t, nr7, dailyTable(ranges[:6]))
	assert.Equal(t, ResultScalar, short.Type())
	assert.Equal(t, int64(0), short.Result)

	full := execute(t, nr7, dailyTable(ranges))
	assert.Equal(t, int64(2), full.Result)
	require.NotNil(t, full.SourceRowCount)
	assert.Equal(t, 2, *full.SourceRowCount)
	assert.Equal(t, "2024-01-08", cell(t, full.SourceRows[0], "date"))
	assert.Equal(t, "2024-01-10", cell(t, full.SourceRows[1], "date"))
}

func TestExecute_FieldOrderDoesNotMatter(t *testing.T) {
	a := execute(t, `{"from": "daily", "map": {"range": "high - low"}, "where": "range > 4", "sort": "range desc", "limit": 3}`, dailyTable(ranges))
	b := execute(t, `{"limit": 3, "sort": "range desc", "where": "range > 4", "map": {"range": "high - low"}, "from": "daily"}`, dailyTable(ranges))

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestExecute_WhereTrueAndLimitAreNoOps(t *testing.T) {
	tbl := dailyTable(ranges)
	plain := execute(t, `{"from": "daily"}`, tbl)
	filtered := execute(t, `{"from": "daily", "where": "true"}`, tbl)
	limited := execute(t, `{"from": "daily", "limit": 100}`, tbl)

	assert.Len(t, plain.Table, len(ranges))
	assert.Equal(t, plain.Table, filtered.Table)
	assert.Equal(t, plain.Table, limited.Table)

	none := execute(t, `{"from": "daily", "where": "false"}`, tbl)
	assert.Empty(t, none.Table)
}

func TestExecute_SortAndLimit(t *testing.T) {
	resp := execute(t, `{"from": "daily", "map": {"range": "high - low"}, "sort": "range desc", "limit": 3}`, dailyTable(ranges))
	require.Len(t, resp.Table, 3)
	assert.Equal(t, 9.0, cell(t, resp.Table[0], "range"))
	assert.Equal(t, 8.0, cell(t, resp.Table[1], "range"))
	assert.Equal(t, 7.0, cell(t, resp.Table[2], "range"))
	assert.Equal(t, []string{"date", "range", "open", "high", "low", "close", "volume"}, resp.Table[0].Keys())

	byDate := execute(t, `{"from": "daily", "sort": "date desc", "limit": 1}`, dailyTable(ranges))
	assert.Equal(t, "2024-01-10", cell(t, byDate.Table[0], "date"))
}

func TestExecute_GroupBy(t *testing.T) {
	resp := execute(t, `{"from": "daily", "map": {"weekday": "dayofweek()"}, "group_by": "weekday"}`, dailyTable(ranges))

	assert.Equal(t, ResultGrouped, resp.Type())
	require.Len(t, resp.Table, 7)
	assert.Equal(t, "Monday", cell(t, resp.Table[0], "weekday"))
	assert.Equal(t, int64(2), cell(t, resp.Table[0], "count"))
	assert.Equal(t, "Sunday", cell(t, resp.Table[6], "weekday"))
	assert.Equal(t, int64(1), cell(t, resp.Table[6], "count"))

	assert.Equal(t, "weekday", cell(t, resp.Summary, "by"))
	assert.Equal(t, &Chart{Category: "weekday", Value: "count"}, resp.Chart)
	minRow := cell(t, resp.Summary, "min_row").(Record)
	maxRow := cell(t, resp.Summary, "max_row").(Record)
	assert.Equal(t, "Thursday", cell(t, minRow, "weekday"))
	assert.Equal(t, "Monday", cell(t, maxRow, "weekday"))
	assert.Nil(t, resp.SourceRows, "no select, no source rows")
}

func TestExecute_GroupAggregates(t *testing.T) {
	resp := execute(t, `{"from": "daily", "map": {"range": "high - low", "wd": "dayofweek()"}, "group_by": "wd", "select": "mean(range), sum(volume)", "sort": "mean_range desc"}`, dailyTable(ranges))

	require.Len(t, resp.Table, 7)
	assert.Equal(t, []string{"wd", "mean_range", "sum_volume"}, resp.Table[0].Keys())
	assert.Equal(t, int64(6), cell(t, resp.Table[0], "wd"))
	assert.Equal(t, 9.0, cell(t, resp.Table[0], "mean_range"))
	assert.Equal(t, int64(1006), cell(t, resp.Table[0], "sum_volume"))

	require.NotNil(t, resp.SourceRowCount)
	assert.Equal(t, len(ranges), *resp.SourceRowCount)
}

func TestExecute_SelectDict(t *testing.T) {
	resp := execute(t, `{"from": "daily", "select": "max(high), count()"}`, dailyTable(ranges))

	assert.Equal(t, ResultDict, resp.Type())
	values := resp.Result.(Record)
	assert.Equal(t, []string{"max_high", "count"}, values.Keys())
	assert.Equal(t, 109.0, cell(t, values, "max_high"))
	assert.Equal(t, int64(10), cell(t, values, "count"))
	assert.Equal(t, 10, cell(t, resp.Summary, "rows_scanned"))
	assert.Nil(t, resp.Table)
}

func TestExecute_Columns(t *testing.T) {
	resp := execute(t, `{"from": "daily", "map": {"range": "high - low"}, "columns": ["range", "date", "missing"]}`, dailyTable(ranges))
	assert.Equal(t, []string{"range", "date"}, resp.Table[0].Keys())
}

func TestExecute_Steps(t *testing.T) {
	resp := execute(t, `{"steps": [
		{"from": "daily", "map": {"range": "high - low", "wd": "dayofweek()"}, "group_by": "wd", "select": "mean(range)"},
		{"where": "mean_range > 4", "select": "count()"}
	]}`, dailyTable(ranges))

	assert.Equal(t, int64(4), resp.Result)
	assert.Equal(t, "daily", resp.Metadata.From)
}

func TestExecute_Rounding(t *testing.T) {
	resp := execute(t, `{"from": "daily", "select": "mean(close) / 3"}`, dailyTable([]float64{0, 0}))
	assert.Equal(t, 33.3333, resp.Result)

	raw := NewExecutor(functions.Builtin(), WithPrecision(-1))
	q := MustDecode(`{"from": "daily", "select": "mean(close) / 3"}`)
	out, err := raw.Execute(q, dailyTable([]float64{0, 0}), nil)
	require.NoError(t, err)
	assert.InDelta(t, 100.0/3, out.Result, 1e-12)
}

func TestExecute_NullForUndefined(t *testing.T) {
	resp := execute(t, `{"from": "daily", "select": "mean(close) / 0"}`, dailyTable(ranges))
	assert.Nil(t, resp.Result)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)
}

// ── Stages ──

func TestExecute_ResampleDropsEmptyBuckets(t *testing.T) {
	day := func(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.UTC) }
	tbl := table.FromBars([]models.OHLCV{
		minuteBar(day(2, 9, 30), 10, 12, 9, 11, 100),
		minuteBar(day(2, 9, 31), 11, 15, 10, 14, 200),
		minuteBar(day(5, 9, 30), 20, 21, 18, 19, 50),
	})

	resp := execute(t, `{"from": "daily"}`, tbl)
	require.Len(t, resp.Table, 2)
	first := resp.Table[0]
	assert.Equal(t, "2024-01-02", cell(t, first, "date"))
	assert.Equal(t, 10.0, cell(t, first, "open"))
	assert.Equal(t, 15.0, cell(t, first, "high"))
	assert.Equal(t, 9.0, cell(t, first, "low"))
	assert.Equal(t, 14.0, cell(t, first, "close"))
	assert.Equal(t, int64(300), cell(t, first, "volume"))
	assert.Equal(t, "2024-01-05", cell(t, resp.Table[1], "date"))

	intraday := execute(t, `{"from": "1m"}`, tbl)
	assert.Equal(t, "09:31", cell(t, intraday.Table[1], "time"))
}

func TestExecute_EmptyTable(t *testing.T) {
	empty := table.FromBars(nil)
	for _, src := range []string{
		`{"from": "daily", "period": "2024"}`,
		`{"from": "weekly", "period": "last_5"}`,
	} {
		resp := execute(t, src, empty)
		assert.Empty(t, resp.Table, src)
		assert.Equal(t, 0, resp.Metadata.Rows)
	}

	_, err := NewExecutor(functions.Builtin()).Execute(MustDecode(`{"period": "not-a-period"}`), empty, nil)
	require.Error(t, err)
	assert.Equal(t, "period", AsError(err).Step)
}

func TestExecute_Session(t *testing.T) {
	night, err := market.NewSession("NIGHT", "18:00", "09:00")
	require.NoError(t, err)
	sessions := market.Sessions{"NIGHT": night}

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	tbl := table.FromBars([]models.OHLCV{
		minuteBar(day.Add(8*time.Hour), 1, 1, 1, 1, 1),
		minuteBar(day.Add(12*time.Hour), 2, 2, 2, 2, 1),
		minuteBar(day.Add(20*time.Hour), 3, 3, 3, 3, 1),
	})
	exec := NewExecutor(functions.Builtin())

	resp, err := exec.Execute(MustDecode(`{"session": "night"}`), tbl, sessions)
	require.NoError(t, err)
	require.Len(t, resp.Table, 2)
	assert.Equal(t, "08:00", cell(t, resp.Table[0], "time"))
	assert.Equal(t, "20:00", cell(t, resp.Table[1], "time"))
	assert.Equal(t, "night", *resp.Metadata.Session)
	assert.Empty(t, resp.Metadata.Warnings)

	resp, err = exec.Execute(MustDecode(`{"session": "lunch"}`), tbl, sessions)
	require.NoError(t, err)
	assert.Len(t, resp.Table, 3)
	assert.Equal(t, []string{"Unknown session 'lunch', using all data"}, resp.Metadata.Warnings)
}

func TestFilterPeriod(t *testing.T) {
	start := time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC)
	bars := make([]models.OHLCV, 10)
	for i := range bars {
		bars[i] = models.OHLCV{Timestamp: start.AddDate(0, 0, i), Open: 1, High: 1, Low: 1, Close: 1}
	}
	tbl := table.FromBars(bars) // 2023-12-28 .. 2024-01-06

	tests := []struct {
		period string
		rows   int
	}{
		{"2024", 6},
		{"2023", 4},
		{"2023-12", 4},
		{"2024-01-03", 1},
		{"2023-12-30:2024-01-02", 4},
		{"2024-01-05:", 2},
		{":2023", 4},
		{"last_3", 3},
		{"last_0", 10},
		{"last_500", 10},
		{"last_week", 8},
		{"last_month", 10},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			out, err := FilterPeriod(tbl, tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, out.Len())
		})
	}

	for period, want := range map[string]string{
		"2024-1":    "Invalid period '2024-1'",
		"abc:":      "Invalid period start 'abc'",
		"2024:x":    "Invalid period end 'x'",
		"yesterday": "Invalid period 'yesterday'",
	} {
		_, err := FilterPeriod(tbl, period)
		require.Error(t, err, period)
		qe := AsError(err)
		assert.Equal(t, "period", qe.Step)
		assert.Equal(t, period, qe.Expression)
		assert.Contains(t, qe.Message, want)
	}
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestFilterPeriod_ExchangeTimezone(t *testing.T) {
	ny := newYork(t)
	at := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, ny) }
	tbl := table.FromBars([]models.OHLCV{
		minuteBar(at(14, 21), 1, 1, 1, 1, 1),
		minuteBar(at(15, 10), 1, 1, 1, 1, 1),
		minuteBar(at(15, 21), 1, 1, 1, 1, 1),
		minuteBar(at(16, 0), 1, 1, 1, 1, 1),
		minuteBar(at(16, 23), 1, 1, 1, 1, 1),
	})

	tests := []struct {
		period string
		want   []time.Time
	}{
		{"2024-03-15", []time.Time{at(15, 10), at(15, 21)}},
		{"2024-03-15:2024-03-16", []time.Time{at(15, 10), at(15, 21), at(16, 0), at(16, 23)}},
		{":2024-03-14", []time.Time{at(14, 21)}},
		{"2024-03-16:", []time.Time{at(16, 0), at(16, 23)}},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			out, err := FilterPeriod(tbl, tt.period)
			require.NoError(t, err)
			require.Equal(t, len(tt.want), out.Len())
			for i, want := range tt.want {
				assert.True(t, want.Equal(out.Time(i)), "row %d: got %v, want %v", i, out.Time(i), want)
			}
		})
	}
}

func TestFilterPeriod_ValidatesEmptyTable(t *testing.T) {
	empty := table.FromBars(nil)

	out, err := FilterPeriod(empty, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	for _, period := range []string{"yesterday", "2024-1", "abc:", "2024:x"} {
		_, err := FilterPeriod(empty, period)
		require.Error(t, err, period)
		assert.Equal(t, "period", AsError(err).Step)
	}
}

func TestBucketLabel_DaylightSaving(t *testing.T) {
	ny := newYork(t)
	at := func(d, h, min int) time.Time { return time.Date(2024, 3, d, h, min, 0, 0, ny) }

	tests := []struct {
		tf   models.Timeframe
		in   time.Time
		want time.Time
	}{
		{models.Timeframe1Hour, at(10, 10, 15), at(10, 10, 0)},
		{models.Timeframe1Hour, at(11, 10, 15), at(11, 10, 0)},
		{models.Timeframe1Hour, at(10, 1, 59), at(10, 1, 0)},
		{models.Timeframe15Min, at(10, 16, 44), at(10, 16, 30)},
		{models.Timeframe4Hour, at(10, 14, 5), at(10, 12, 0)},
		{models.TimeframeDaily, at(10, 23, 0), at(10, 0, 0)},
	}
	for _, tt := range tests {
		got := BucketLabel(tt.in, tt.tf)
		assert.True(t, tt.want.Equal(got), "%s %v: got %v, want %v", tt.tf, tt.in, got, tt.want)
	}
}

func TestResample_AcrossDaylightSaving(t *testing.T) {
	ny := newYork(t)
	at := func(d, h, min int) time.Time { return time.Date(2024, 3, d, h, min, 0, 0, ny) }
	tbl := table.FromBars([]models.OHLCV{
		minuteBar(at(10, 1, 30), 10, 11, 9, 10, 1),
		minuteBar(at(10, 3, 0), 20, 21, 19, 20, 2),
		minuteBar(at(10, 3, 45), 21, 25, 20, 24, 3),
		minuteBar(at(10, 10, 15), 30, 31, 29, 30, 4),
		minuteBar(at(11, 10, 15), 40, 41, 39, 40, 5),
	})

	out := Resample(tbl, models.Timeframe1Hour)
	want := []time.Time{at(10, 1, 0), at(10, 3, 0), at(10, 10, 0), at(11, 10, 0)}
	require.Equal(t, len(want), out.Len())
	for i, w := range want {
		assert.True(t, w.Equal(out.Time(i)), "bucket %d: got %v, want %v", i, out.Time(i), w)
	}
	assert.Equal(t, []float64{11, 25, 31, 41}, out.Floats(table.ColHigh))
	assert.Equal(t, []float64{1, 5, 4, 5}, out.Floats(table.ColVolume))
}

func TestBucketLabel(t *testing.T) {
	at := func(y int, m time.Month, d, h, min int) time.Time { return time.Date(y, m, d, h, min, 0, 0, time.UTC) }
	tests := []struct {
		tf   models.Timeframe
		in   time.Time
		want time.Time
	}{
		{models.Timeframe30Min, at(2024, 1, 2, 10, 47), at(2024, 1, 2, 10, 30)},
		{models.Timeframe4Hour, at(2024, 1, 2, 10, 47), at(2024, 1, 2, 8, 0)},
		{models.TimeframeDaily, at(2024, 1, 2, 10, 47), at(2024, 1, 2, 0, 0)},
		{models.TimeframeWeekly, at(2024, 1, 1, 9, 0), at(2024, 1, 7, 0, 0)},
		{models.TimeframeWeekly, at(2024, 1, 7, 9, 0), at(2024, 1, 7, 0, 0)},
		{models.TimeframeMonthly, at(2024, 2, 10, 0, 0), at(2024, 2, 29, 0, 0)},
		{models.TimeframeQuarterly, at(2024, 5, 1, 0, 0), at(2024, 6, 30, 0, 0)},
		{models.TimeframeYearly, at(2024, 5, 1, 0, 0), at(2024, 12, 31, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(string(tt.tf), func(t *testing.T) {
			assert.Equal(t, tt.want, BucketLabel(tt.in, tt.tf))
		})
	}
}

func TestAggregateColumnName(t *testing.T) {
	for in, want := range map[string]string{
		"count()":                "count",
		" mean(range) ":          "mean_range",
		"percentile(close, 90)":  "percentile_close",
		"percentile(close, 0.9)": "percentile(close, 0.9)",
		"close":                  "close",
	} {
		assert.Equal(t, want, AggregateColumnName(in), in)
	}
}

// ── Errors ──

func TestExecute_Errors(t *testing.T) {
	tbl := dailyTable(ranges)
	tests := []struct {
		name, src         string
		typ, step, expr   string
		message           string
	}{
		{"where not boolean", `{"where": "close + 1"}`, TypeType, "where", "close + 1", "WHERE must produce a boolean series, got float column"},
		{"unknown column", `{"map": {"x": "nope * 2"}}`, TypeExpression, "map", "nope * 2", "Unknown column 'nope'"},
		{"group key missing", `{"group_by": "weekday"}`, TypeValidation, "group_by", "weekday", "Column 'weekday' not found. Available: close, high, low, open, volume"},
		{"aggregate column missing", `{"group_by": "volume", "select": "mean(range)"}`, TypeValidation, "select", "mean(range)", "Column 'range' not found"},
		{"sort column missing", `{"sort": "range desc"}`, TypeValidation, "sort", "range desc", "Sort column 'range' not found. Available: close, high, low, open, timestamp, volume"},
		{"select column", `{"select": "close"}`, TypeType, "select", "close", "select must produce a single value"},
		{"map wrong type", `{"map": {"x": 5}}`, TypeValidation, "map", "5", "map['x'] must be a string expression, got number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := executeErr(t, tt.src, tbl)
			assert.Equal(t, tt.typ, qe.Type)
			assert.Equal(t, tt.step, qe.Step)
			assert.Equal(t, tt.expr, qe.Expression)
			assert.Contains(t, qe.Message, tt.message)
		})
	}
}

func TestExecute_ValidationCollectsAllFindings(t *testing.T) {
	qe := executeErr(t, `{"map": {"a": "close = 1"}, "where": "foo(close) > 1", "group_by": "dayofweek()"}`, dailyTable(ranges))
	assert.Equal(t, TypeValidation, qe.Type)
	require.Len(t, qe.Findings, 3)
	assert.Equal(t, []string{"map", "where", "group_by"},
		[]string{qe.Findings[0].Step, qe.Findings[1].Step, qe.Findings[2].Step})
	assert.Equal(t, "map", qe.Step)
}

func TestCheck(t *testing.T) {
	reg := functions.Builtin()

	assert.Empty(t, Check([]byte(`{"map": {"r": "high - low"}, "where": "r > 2"}`), reg))

	findings := Check([]byte(`{"limit": 0}`), reg)
	require.Len(t, findings, 1)
	assert.Equal(t, "validate", findings[0].Step)
	assert.Contains(t, findings[0].Message, "limit must be a positive integer")

	findings = Check([]byte(`{"map": {"a": "close = 1"}, "where": "foo(close) > 1"}`), reg)
	require.Len(t, findings, 2)
	assert.Equal(t, "map", findings[0].Step)
	assert.Equal(t, "where", findings[1].Step)
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))
	assert.Equal(t, TypeParse, AsError(&barbql.ParseError{Message: "x"}).Type)
	assert.Equal(t, TypeUnknownFunction, AsError(&barbql.EvalError{Kind: barbql.UnknownFunction, Message: "x"}).Type)
	assert.Equal(t, TypeInternal, AsError(assert.AnError).Type)
}

// ── Encoding ──

func TestResponse_Encoding(t *testing.T) {
	resp := execute(t, `{"from": "daily", "map": {"range": "high - low"}, "limit": 2}`, dailyTable(ranges))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"date":"2024-01-01","range":5,"open":100,"high":105,"low":100,"close":102.5,"volume":1000}`)
	assert.Contains(t, string(data), `"metadata":{"rows":10,"session":null,"from":"daily","warnings":[]}`)
	assert.Contains(t, string(data), `"query":{"from":"daily","map":{"range":"high - low"},"limit":2}`)

	out, err := yaml.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), "type: table")
	assert.Contains(t, string(out), "range: high - low")
}
