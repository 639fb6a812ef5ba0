package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Clock is a time of day in minutes after midnight, exchange local time.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid session time %q, expected HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of t, read from its wall clock.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Session is a named daily trading window [Start, End). A session whose
// start is after its end wraps midnight (ETH 18:00 → 17:00).
type Session struct {
	Name  string
	Start Clock
	End   Clock
}

// NewSession parses a session from its HH:MM bounds.
func NewSession(name, start, end string) (Session, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", name, err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", name, err)
	}
	return Session{Name: strings.ToUpper(name), Start: s, End: e}, nil
}

// Wraps reports whether the session spans midnight.
func (s Session) Wraps() bool { return s.Start > s.End }

// Contains reports whether t falls inside the session window. Wrapping
// sessions match t >= start OR t < end; equal bounds cover the whole day.
func (s Session) Contains(t time.Time) bool {
	c := ClockOf(t)
	switch {
	case s.Start == s.End:
		return true
	case s.Wraps():
		return c >= s.Start || c < s.End
	default:
		return c >= s.Start && c < s.End
	}
}

// TradingDate returns the calendar date of the session t belongs to. Bars
// of a wrapping session at or after its start belong to the next date.
func (s Session) TradingDate(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if s.Wraps() && ClockOf(t) >= s.Start {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// SessionID encodes TradingDate(t) as YYYYMMDD.
func (s Session) SessionID(t time.Time) int64 {
	d := s.TradingDate(t)
	return int64(d.Year()*10000 + int(d.Month())*100 + d.Day())
}

func (s Session) String() string {
	return fmt.Sprintf("%s %s-%s", s.Name, s.Start, s.End)
}

// Sessions maps upper-case session names to their windows.
type Sessions map[string]Session

// Lookup finds a session by name, case-insensitively.
func (ss Sessions) Lookup(name string) (Session, bool) {
	s, ok := ss[strings.ToUpper(strings.TrimSpace(name))]
	return s, ok
}

// Names returns the session names in start-time order.
func (ss Sessions) Names() []string {
	out := make([]string, 0, len(ss))
	for name := range ss {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := ss[out[i]], ss[out[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Name < b.Name
	})
	return out
}
