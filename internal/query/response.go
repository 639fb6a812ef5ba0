package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/barb/internal/table"
)

// ════════════════════════════════════════════════════════════════════
// Ordered records
// ════════════════════════════════════════════════════════════════════

// Cell is one key/value pair of a Record.
type Cell struct {
	Key   string
	Value any
}

// Record is a JSON object that keeps its key order when encoded.
type Record []Cell

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (r Record) Keys() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Key
	}
	return out
}

func (r Record) pick(keys []string) Record {
	var out Record
	for _, k := range keys {
		if v, ok := r.Get(k); ok {
			out = append(out, Cell{k, v})
		}
	}
	return out
}

// MarshalJSON encodes r as an object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", c.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes r as a mapping node in key order.
func (r Record) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, c := range r {
		k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Key}
		v := &yaml.Node{}
		if err := v.Encode(c.Value); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", c.Key, err)
		}
		node.Content = append(node.Content, k, v)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════
// Response envelope
// ════════════════════════════════════════════════════════════════════

// Result types reported in the summary.
const (
	ResultScalar  = "scalar"
	ResultDict    = "dict"
	ResultTable   = "table"
	ResultGrouped = "grouped"
)

// Metadata describes how a result was produced.
type Metadata struct {
	Rows     int      `json:"rows"     yaml:"rows"`
	Session  *string  `json:"session"  yaml:"session"`
	From     string   `json:"from"     yaml:"from"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Chart suggests how a grouped result is plotted.
type Chart struct {
	Category string `json:"category" yaml:"category"`
	Value    string `json:"value"    yaml:"value"`
}

// Response is the result envelope of one query. Result is the scalar, the
// dict of named values, or the table rows. SourceRows holds the rows an
// aggregate was computed from.
type Response struct {
	Result         any      `json:"result"           yaml:"result"`
	Summary        Record   `json:"summary"          yaml:"summary"`
	Table          []Record `json:"table"            yaml:"table"`
	SourceRows     []Record `json:"source_rows"      yaml:"source_rows"`
	SourceRowCount *int     `json:"source_row_count" yaml:"source_row_count"`
	Metadata       Metadata `json:"metadata"         yaml:"metadata"`
	Query          Record   `json:"query"            yaml:"query"`
	Chart          *Chart   `json:"chart,omitempty"  yaml:"chart,omitempty"`
}

// Type returns the result type from the summary.
func (r *Response) Type() string {
	v, _ := r.Summary.Get("type")
	s, _ := v.(string)
	return s
}

// ════════════════════════════════════════════════════════════════════
// Output formatting
// ════════════════════════════════════════════════════════════════════

// preservePrecision columns carry source prices and are never rounded.
var preservePrecision = map[string]bool{
	table.ColOpen: true, table.ColHigh: true, table.ColLow: true,
	table.ColClose: true, table.ColVolume: true,
}

var ohlcOrder = []string{table.ColOpen, table.ColHigh, table.ColLow, table.ColClose, table.ColVolume}

var (
	dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

	monthNames = []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
)

// displayFormats turn time extraction results into labels for output.
// Filtering still sees the numbers.
var displayFormats = map[string]func(float64) any{
	"dayofweek()": func(v float64) any { return label(dayNames, int(v)) },
	"month()":     func(v float64) any { return label(monthNames, int(v)-1) },
	"hour()": func(v float64) any {
		h := int(v)
		return fmt.Sprintf("%02d:00-%02d:59", h, h)
	},
}

func label(names []string, i int) any {
	if i < 0 || i >= len(names) {
		return nil
	}
	return names[i]
}

// view is what output formatting needs to know about the query.
type view struct {
	maps      Fields
	groupKeys []string
	columns   []string
	sortCol   string
	hasSelect bool
	intraday  bool
	precision int
}

// roundFloat rounds v to places decimals; negative places disable rounding.
func roundFloat(v float64, places int) float64 {
	if places < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return f
}

// cellValue converts a scalar for output: missing values become nil and
// calculated floats are rounded.
func cellValue(key string, s table.Scalar, precision int) any {
	if s.Kind == table.Float && !s.IsMissing() && !math.IsInf(s.Num, 0) && !preservePrecision[key] {
		return roundFloat(s.Num, precision)
	}
	return s.Interface()
}

// records renders t as rows with a stable column order: date, time, group
// keys, map columns, OHLCV, then everything else. A non-empty columns
// projection replaces that order.
func (v view) records(t *table.Table) []Record {
	var names []string
	for _, n := range t.Names() {
		if strings.HasPrefix(n, "__") {
			continue
		}
		if t.HasIndex() && (n == "date" || (n == "time" && v.intraday)) {
			continue
		}
		names = append(names, n)
	}
	var lead []string
	if t.HasIndex() {
		lead = append(lead, "date")
		if v.intraday {
			lead = append(lead, "time")
		}
	}

	order := v.project(lead, names)
	if order == nil {
		order = orderColumns(lead, names, v.groupKeys, v.maps.Names())
	}

	formats := map[string]func(float64) any{}
	for _, f := range v.maps {
		if expr, ok := f.Value.(string); ok {
			if fmtFn, ok := displayFormats[expr]; ok {
				formats[f.Name] = fmtFn
			}
		}
	}

	out := make([]Record, t.Len())
	for i := range out {
		rec := make(Record, 0, len(order))
		for _, name := range order {
			rec = append(rec, Cell{name, v.cell(t, name, i, formats[name])})
		}
		out[i] = rec
	}
	return out
}

func (v view) cell(t *table.Table, name string, i int, format func(float64) any) any {
	if t.HasIndex() {
		switch {
		case name == "date":
			return t.Time(i).Format(table.DateLayout)
		case name == "time" && v.intraday:
			return t.Time(i).Format("15:04")
		}
	}
	c, _ := t.Column(name)
	s := c.At(i)
	if format != nil {
		if s.IsMissing() || !s.Kind.Numeric() {
			return nil
		}
		return format(s.Float())
	}
	return cellValue(name, s, v.precision)
}

// project applies the columns projection, or returns nil when none of the
// requested columns exist.
func (v view) project(lead, names []string) []string {
	if len(v.columns) == 0 {
		return nil
	}
	have := map[string]bool{}
	for _, n := range append(append([]string{}, lead...), names...) {
		have[n] = true
	}
	var out []string
	for _, c := range v.columns {
		if have[c] {
			out = append(out, c)
		}
	}
	return out
}

func orderColumns(lead, names, groupKeys, mapNames []string) []string {
	present := map[string]bool{}
	for _, n := range names {
		present[n] = true
	}
	seen := map[string]bool{}
	out := append([]string{}, lead...)
	for _, n := range lead {
		seen[n] = true
	}
	add := func(n string) {
		if present[n] && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range groupKeys {
		add(n)
	}
	for _, n := range mapNames {
		add(n)
	}
	for _, n := range ohlcOrder {
		add(n)
	}
	for _, n := range names {
		add(n)
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// Summary
// ════════════════════════════════════════════════════════════════════

func (v view) summaryColumns() []string {
	cols := v.maps.Names()
	if v.sortCol != "" {
		dup := false
		for _, c := range cols {
			dup = dup || c == v.sortCol
		}
		if !dup {
			cols = append(cols, v.sortCol)
		}
	}
	return cols
}

// tableSummary describes table rows as shown to the caller: column stats,
// first and last rows and, for grouped results, the extreme groups.
func (v view) tableSummary(rows []Record, grouped bool) Record {
	kind := ResultTable
	if grouped {
		kind = ResultGrouped
	}
	s := Record{{"type", kind}, {"rows", len(rows)}}
	if grouped {
		s = append(s, Cell{"by", v.groupKeys[0]})
	}
	if len(rows) == 0 {
		return s
	}

	var stats Record
	for _, col := range v.summaryColumns() {
		if _, ok := rows[0].Get(col); !ok {
			continue
		}
		var vals []float64
		for _, r := range rows {
			if f, ok := numeric(r, col); ok {
				vals = append(vals, f)
			}
		}
		if len(vals) == 0 {
			continue
		}
		lo, hi, sum := vals[0], vals[0], 0.0
		for _, f := range vals {
			lo, hi, sum = math.Min(lo, f), math.Max(hi, f), sum+f
		}
		stats = append(stats, Cell{col, Record{
			{"min", lo},
			{"max", hi},
			{"mean", roundFloat(sum/float64(len(vals)), 2)},
		}})
	}
	if len(stats) > 0 {
		s = append(s, Cell{"stats", stats})
	}

	edge := append([]string{"date", "time"}, v.maps.Names()...)
	if first := rows[0].pick(edge); len(first) > 0 {
		s = append(s, Cell{"first", first})
	}
	if last := rows[len(rows)-1].pick(edge); len(last) > 0 && len(rows) > 1 {
		s = append(s, Cell{"last", last})
	}

	if grouped {
		isKey := map[string]bool{}
		for _, k := range v.groupKeys {
			isKey[k] = true
		}
		aggCol := ""
		for _, k := range rows[0].Keys() {
			if !isKey[k] {
				aggCol = k
				break
			}
		}
		if aggCol != "" {
			var minRow, maxRow Record
			var lo, hi float64
			for _, r := range rows {
				f, ok := numeric(r, aggCol)
				if !ok {
					continue
				}
				if minRow == nil || f < lo {
					minRow, lo = r, f
				}
				if maxRow == nil || f > hi {
					maxRow, hi = r, f
				}
			}
			if minRow != nil {
				keys := append(append([]string{}, v.groupKeys...), aggCol)
				s = append(s, Cell{"min_row", minRow.pick(keys)}, Cell{"max_row", maxRow.pick(keys)})
			}
		}
	}
	return s
}

func numeric(r Record, key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
