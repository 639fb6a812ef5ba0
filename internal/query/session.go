package query

import (
	"fmt"

	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/table"
)

// HasTimeOfDay reports whether any bar carries a time other than midnight.
// Daily and coarser tables do not, and session filtering is skipped for them.
func HasTimeOfDay(t *table.Table) bool {
	for _, ts := range t.Index() {
		if ts.Hour() != 0 {
			return true
		}
	}
	return false
}

// FilterSession keeps the rows inside the named session. An unknown
// session leaves t untouched and returns a warning instead of an error.
func FilterSession(t *table.Table, name string, sessions market.Sessions) (*table.Table, string) {
	s, ok := sessions.Lookup(name)
	if !ok {
		return t, fmt.Sprintf("Unknown session '%s', using all data", name)
	}
	mask := make([]bool, t.Len())
	for i, ts := range t.Index() {
		mask[i] = s.Contains(ts)
	}
	return t.Filter(mask), ""
}

// TagSessions attaches per-row session ids derived from the session's
// configured start and end, for the session_* functions.
func TagSessions(t *table.Table, s market.Session) *table.Table {
	ids := make([]int64, t.Len())
	for i, ts := range t.Index() {
		ids[i] = s.SessionID(ts)
	}
	out, err := t.WithSessionIDs(ids)
	if err != nil {
		return t
	}
	return out
}
