package functions

import (
	"math"
	"time"

	"github.com/seenimoa/barb/internal/analysis/technical"
	"github.com/seenimoa/barb/internal/table"
)

func registerSession(r *Registry) {
	gap := r.sessionGap
	r.registerGroup("session", []Spec{
		{Name: "session_high", Signature: "session_high()", Description: "highest high of the bar's trading session", MinArgs: 0, MaxArgs: 0, Fn: sessionFn("session_high", gap, table.ColHigh, technical.Max)},
		{Name: "session_low", Signature: "session_low()", Description: "lowest low of the bar's trading session", MinArgs: 0, MaxArgs: 0, Fn: sessionFn("session_low", gap, table.ColLow, technical.Min)},
		{Name: "session_open", Signature: "session_open()", Description: "open of the session's first bar", MinArgs: 0, MaxArgs: 0, Fn: sessionFn("session_open", gap, table.ColOpen, firstValid)},
		{Name: "session_close", Signature: "session_close()", Description: "close of the session's last bar", MinArgs: 0, MaxArgs: 0, Fn: sessionFn("session_close", gap, table.ColClose, lastValid)},
	})
}

// SessionIDs returns one id per row grouping bars into trading sessions.
// Explicit ids attached to the table win; otherwise a new session starts
// after any gap longer than gap between consecutive timestamps.
//
// The gap fallback is a heuristic with known blind spots. A market that
// trades through the night with only a short maintenance halt never
// shows a long enough gap, so consecutive sessions merge into one id. A
// halt or data hole longer than gap inside a session splits it in two.
// Tag the table from configured session times whenever they exist.
func SessionIDs(t *table.Table, gap time.Duration) []int64 {
	if ids := t.SessionIDs(); ids != nil {
		return ids
	}
	ids := make([]int64, t.Len())
	if !t.HasIndex() {
		return ids
	}
	var id int64
	index := t.Index()
	for i := 1; i < len(index); i++ {
		if index[i].Sub(index[i-1]) > gap {
			id++
		}
		ids[i] = id
	}
	return ids
}

// sessionFn reduces col within each session and broadcasts the result back
// to every bar of that session.
func sessionFn(name string, gap time.Duration, col string, reduce func([]float64) float64) Func {
	return func(t *table.Table, _ []table.Value) (table.Value, error) {
		cols, err := columns(name, t, col)
		if err != nil {
			return table.Value{}, err
		}
		data := cols[0]
		ids := SessionIDs(t, gap)

		groups := make(map[int64][]int)
		for i, id := range ids {
			groups[id] = append(groups[id], i)
		}
		out := make([]float64, len(data))
		buf := make([]float64, 0, 64)
		for _, rows := range groups {
			buf = buf[:0]
			for _, i := range rows {
				buf = append(buf, data[i])
			}
			v := reduce(buf)
			for _, i := range rows {
				out[i] = v
			}
		}
		return table.Floats(out), nil
	}
}

func firstValid(data []float64) float64 {
	for _, v := range data {
		if !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

func lastValid(data []float64) float64 {
	for i := len(data) - 1; i >= 0; i-- {
		if !math.IsNaN(data[i]) {
			return data[i]
		}
	}
	return math.NaN()
}
