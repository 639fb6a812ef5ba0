// Package table implements Barb's in-memory column store: an immutable,
// time-indexed set of typed columns. Every transformation returns a new
// Table; columns are shared between tables and never written after
// construction.
package table

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/barb/pkg/models"
)

// Base OHLCV column names.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// Table is an ordered set of rows keyed by a non-decreasing timestamp
// index. Tables produced by grouping carry no index.
type Table struct {
	index    []time.Time
	length   int
	names    []string
	cols     map[string]*Column
	sessions []int64
}

// New creates an empty-column table over the given time index.
func New(index []time.Time) *Table {
	return &Table{index: index, length: len(index), cols: map[string]*Column{}}
}

// NewFrame creates an index-less table with n rows, used for grouped results.
func NewFrame(n int) *Table {
	return &Table{length: n, cols: map[string]*Column{}}
}

// FromBars builds an OHLCV table from bars sorted by timestamp.
func FromBars(bars []models.OHLCV) *Table {
	n := len(bars)
	index := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		index[i] = b.Timestamp
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = float64(b.Volume)
	}
	t := New(index)
	t.set(ColOpen, NewFloat(open))
	t.set(ColHigh, NewFloat(high))
	t.set(ColLow, NewFloat(low))
	t.set(ColClose, NewFloat(closes))
	t.set(ColVolume, NewInt(volume))
	return t
}

// Bars converts the OHLCV columns back into bars.
func (t *Table) Bars() []models.OHLCV {
	open, high := t.Floats(ColOpen), t.Floats(ColHigh)
	low, closes, volume := t.Floats(ColLow), t.Floats(ColClose), t.Floats(ColVolume)
	out := make([]models.OHLCV, t.length)
	for i := range out {
		out[i] = models.OHLCV{Open: open[i], High: high[i], Low: low[i], Close: closes[i]}
		if t.index != nil {
			out[i].Timestamp = t.index[i]
		}
		if volume != nil {
			out[i].Volume = int64(volume[i])
		}
	}
	return out
}

// Len returns the row count.
func (t *Table) Len() int { return t.length }

// HasIndex reports whether rows carry timestamps.
func (t *Table) HasIndex() bool { return t.index != nil }

// Index returns the timestamp index. Callers must not modify it.
func (t *Table) Index() []time.Time { return t.index }

// Time returns the timestamp of row i.
func (t *Table) Time(i int) time.Time { return t.index[i] }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Floats returns the named column as floats, or nil if it does not exist.
func (t *Table) Floats(name string) []float64 {
	c, ok := t.cols[name]
	if !ok {
		return nil
	}
	return c.Floats()
}

// Available lists column names, sorted, for error messages.
func (t *Table) Available() string {
	names := t.Names()
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// With returns a copy of t with the named column added or replaced.
// Replacing keeps the column's position.
func (t *Table) With(name string, c *Column) (*Table, error) {
	if c.Len() != t.length {
		return nil, fmt.Errorf("column %q has %d rows, table has %d", name, c.Len(), t.length)
	}
	out := t.shallow()
	out.set(name, c)
	return out, nil
}

// Without returns a copy of t without the named columns.
func (t *Table) Without(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Table{index: t.index, length: t.length, cols: map[string]*Column{}, sessions: t.sessions}
	for _, n := range t.names {
		if !drop[n] {
			out.set(n, t.cols[n])
		}
	}
	return out
}

// Select returns a copy of t holding only the named columns, in that order.
// Unknown names are skipped.
func (t *Table) Select(names ...string) *Table {
	out := &Table{index: t.index, length: t.length, cols: map[string]*Column{}, sessions: t.sessions}
	for _, n := range names {
		if c, ok := t.cols[n]; ok {
			out.set(n, c)
		}
	}
	return out
}

// Filter keeps the rows where mask is true.
func (t *Table) Filter(mask []bool) *Table {
	idx := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// Take gathers the rows at idx, in that order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{length: len(idx), cols: make(map[string]*Column, len(t.cols))}
	if t.index != nil {
		out.index = make([]time.Time, len(idx))
		for j, i := range idx {
			out.index[j] = t.index[i]
		}
	}
	if t.sessions != nil {
		out.sessions = make([]int64, len(idx))
		for j, i := range idx {
			out.sessions[j] = t.sessions[i]
		}
	}
	for _, n := range t.names {
		out.set(n, t.cols[n].Take(idx))
	}
	return out
}

// Slice returns rows [start, end), clamped to the table bounds.
func (t *Table) Slice(start, end int) *Table {
	start = max(0, min(start, t.length))
	end = max(start, min(end, t.length))
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return t.Take(idx)
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table { return t.Slice(0, n) }

// Between returns rows whose timestamp lies in [from, to). A zero bound is
// open-ended.
func (t *Table) Between(from, to time.Time) *Table {
	start, end := 0, t.length
	if !from.IsZero() {
		start = sort.Search(t.length, func(i int) bool { return !t.index[i].Before(from) })
	}
	if !to.IsZero() {
		end = sort.Search(t.length, func(i int) bool { return !t.index[i].Before(to) })
	}
	return t.Slice(start, end)
}

// SessionIDs returns per-row session identifiers, or nil when the table
// carries no session metadata.
func (t *Table) SessionIDs() []int64 { return t.sessions }

// WithSessionIDs returns a copy of t tagged with per-row session ids.
func (t *Table) WithSessionIDs(ids []int64) (*Table, error) {
	if len(ids) != t.length {
		return nil, fmt.Errorf("session ids have %d rows, table has %d", len(ids), t.length)
	}
	out := t.shallow()
	out.sessions = ids
	return out, nil
}

// Row returns row i as scalars keyed by column name.
func (t *Table) Row(i int) map[string]Scalar {
	out := make(map[string]Scalar, len(t.names))
	for _, n := range t.names {
		out[n] = t.cols[n].At(i)
	}
	return out
}

func (t *Table) shallow() *Table {
	out := &Table{
		index:    t.index,
		length:   t.length,
		names:    make([]string, len(t.names), len(t.names)+1),
		cols:     make(map[string]*Column, len(t.cols)+1),
		sessions: t.sessions,
	}
	copy(out.names, t.names)
	for k, v := range t.cols {
		out.cols[k] = v
	}
	return out
}

func (t *Table) set(name string, c *Column) {
	if _, ok := t.cols[name]; !ok {
		t.names = append(t.names, name)
	}
	t.cols[name] = c
}

// Set adds a column in place. It is meant for builders assembling a new
// table before handing it out; published tables must use With.
func (t *Table) Set(name string, c *Column) error {
	if c.Len() != t.length {
		return fmt.Errorf("column %q has %d rows, table has %d", name, c.Len(), t.length)
	}
	t.set(name, c)
	return nil
}
