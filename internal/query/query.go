// Package query implements the Barb Script pipeline: decoding a JSON query,
// validating it, and running it over a bar table through the fixed stage
// order session → period → from → map → where → group_by → select → sort →
// limit. Stage order never depends on the order of fields in the JSON.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/pkg/models"
)

// Query field names.
const (
	FieldSession = "session"
	FieldFrom    = "from"
	FieldPeriod  = "period"
	FieldMap     = "map"
	FieldWhere   = "where"
	FieldGroupBy = "group_by"
	FieldSelect  = "select"
	FieldSort    = "sort"
	FieldLimit   = "limit"
	FieldColumns = "columns"
	FieldSteps   = "steps"
)

var validFields = map[string]bool{
	FieldSession: true, FieldFrom: true, FieldPeriod: true, FieldMap: true,
	FieldWhere: true, FieldGroupBy: true, FieldSelect: true, FieldSort: true,
	FieldLimit: true, FieldColumns: true, FieldSteps: true,
}

// stepFields are the fields a single entry of steps may carry.
var stepFields = map[string]bool{
	FieldSession: true, FieldFrom: true, FieldPeriod: true, FieldMap: true,
	FieldWhere: true, FieldGroupBy: true, FieldSelect: true, FieldSort: true,
	FieldLimit: true,
}

// Fields is an ordered list of map entries: name → expression.
type Fields []barbql.Field

// Names returns the entry names in declaration order.
func (fs Fields) Names() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// Expr returns the expression text of the named entry.
func (fs Fields) Expr(name string) (string, bool) {
	for _, f := range fs {
		if f.Name == name {
			s, ok := f.Value.(string)
			return s, ok
		}
	}
	return "", false
}

func (fs Fields) record() Record {
	out := make(Record, len(fs))
	for i, f := range fs {
		out[i] = Cell{Key: f.Name, Value: f.Value}
	}
	return out
}

// Selection is the select field split into terms. List records that the
// query gave an array, which yields a dict result even for one term.
type Selection struct {
	Terms []string
	List  bool
}

// Multi reports whether the selection produces a dict of named values.
func (s *Selection) Multi() bool { return s.List || len(s.Terms) > 1 }

// Step holds the pipeline fields. A flat query is a single Step.
type Step struct {
	Session string
	From    string
	Period  string
	Map     Fields
	Where   string
	GroupBy []string
	Select  *Selection
	Sort    string
	Limit   int
}

// Query is a decoded Barb Script query. Either the embedded Step is used
// (flat query) or Steps is non-empty (multi-step query).
type Query struct {
	Step
	Columns []string
	Steps   []Step
}

// IsMulti reports whether q is a multi-step query.
func (q *Query) IsMulti() bool { return len(q.Steps) > 0 }

// Decode parses a JSON query and checks its shape: unknown fields,
// timeframe, limit, and the types of every field. Expression checks are
// left to Validate.
func Decode(data []byte) (*Query, error) {
	raw, err := decodeObject(data, "query")
	if err != nil {
		return nil, err
	}

	var unknown []string
	for k := range raw {
		if !validFields[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, validationError("validate", "", "Unknown fields: %s. Valid: %s",
			strings.Join(unknown, ", "), strings.Join(sortedKeys(validFields), ", "))
	}

	q := &Query{}
	if r, ok := raw[FieldColumns]; ok {
		cols, _, err := decodeStrings(r, FieldColumns)
		if err != nil {
			return nil, err
		}
		q.Columns = cols
	}

	stepsRaw, hasSteps := raw[FieldSteps]
	delete(raw, FieldSteps)
	delete(raw, FieldColumns)

	if !hasSteps {
		step, err := decodeStep(raw, "")
		if err != nil {
			return nil, err
		}
		q.Step = step
		return q, nil
	}

	if len(raw) > 0 {
		return nil, validationError("validate", "", "steps cannot be combined with top-level %s. Move them into a step",
			strings.Join(sortedKeys(raw), ", "))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(stepsRaw, &items); err != nil || len(items) == 0 {
		return nil, validationError("validate", "", "steps must be a non-empty array")
	}
	for i, item := range items {
		label := fmt.Sprintf("steps[%d]", i)
		obj, err := decodeObject(item, label)
		if err != nil {
			return nil, err
		}
		var unknown []string
		for k := range obj {
			if !stepFields[k] {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, validationError("validate", "", "Unknown fields in %s: %s. Valid: %s",
				label, strings.Join(unknown, ", "), strings.Join(sortedKeys(stepFields), ", "))
		}
		if i > 0 {
			for _, scope := range []string{FieldSession, FieldFrom, FieldPeriod} {
				if _, ok := obj[scope]; ok {
					return nil, validationError("validate", "", "%s: %s is only allowed in the first step", label, scope)
				}
			}
		}
		step, err := decodeStep(obj, label+".")
		if err != nil {
			return nil, err
		}
		q.Steps = append(q.Steps, step)
	}
	return q, nil
}

// MustDecode is Decode for literals in tests and examples.
func MustDecode(s string) *Query {
	q, err := Decode([]byte(s))
	if err != nil {
		panic(err)
	}
	return q
}

func decodeObject(data []byte, label string) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, validationError("validate", "", "%s must be a JSON object", label)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, validationError("validate", "", "invalid %s JSON: %v", label, err)
	}
	return raw, nil
}

func decodeStep(raw map[string]json.RawMessage, prefix string) (Step, error) {
	var s Step
	var err error

	if r, ok := raw[FieldFrom]; ok {
		if s.From, err = decodeString(r, prefix+FieldFrom); err != nil || !models.Timeframe(s.From).Valid() {
			return s, validationError("validate", "", "Invalid timeframe '%s'. Valid: %s",
				strings.Trim(string(r), `"`), strings.Join(models.Timeframes(), ", "))
		}
	}
	if r, ok := raw[FieldLimit]; ok {
		if s.Limit, err = decodeLimit(r); err != nil {
			return s, err
		}
	}
	if r, ok := raw[FieldMap]; ok {
		if s.Map, err = decodeFields(r); err != nil {
			return s, err
		}
	}

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{FieldSession, &s.Session},
		{FieldPeriod, &s.Period},
		{FieldWhere, &s.Where},
		{FieldSort, &s.Sort},
	} {
		if r, ok := raw[f.name]; ok {
			if *f.dst, err = decodeString(r, prefix+f.name); err != nil {
				return s, err
			}
		}
	}

	if r, ok := raw[FieldGroupBy]; ok {
		keys, _, err := decodeStrings(r, prefix+FieldGroupBy)
		if err != nil {
			return s, err
		}
		s.GroupBy = trimAll(keys)
	}
	if r, ok := raw[FieldSelect]; ok {
		terms, list, err := decodeStrings(r, prefix+FieldSelect)
		if err != nil {
			return s, err
		}
		sel := &Selection{List: list}
		for _, t := range terms {
			sel.Terms = append(sel.Terms, barbql.SplitSelect(t)...)
		}
		if len(sel.Terms) > 0 {
			s.Select = sel
		}
	}
	return s, nil
}

func decodeString(r json.RawMessage, name string) (string, error) {
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		return "", validationError("validate", string(r), "%s must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

// decodeStrings accepts a string or an array of strings. The bool result
// reports whether an array was given.
func decodeStrings(r json.RawMessage, name string) ([]string, bool, error) {
	var one string
	if err := json.Unmarshal(r, &one); err == nil {
		if one == "" {
			return nil, false, nil
		}
		return []string{one}, false, nil
	}
	var many []string
	if err := json.Unmarshal(r, &many); err != nil {
		return nil, false, validationError("validate", string(r), "%s must be a string or an array of strings", name)
	}
	return many, true, nil
}

func decodeLimit(r json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil && i >= 1 {
				return int(i), nil
			}
		}
	}
	return 0, validationError("validate", string(r), "limit must be a positive integer")
}

// decodeFields reads a JSON object keeping key order. A value of the form
// {"expression": "..."} is unwrapped to its string.
func decodeFields(r json.RawMessage) (Fields, error) {
	shapeErr := validationError("validate", string(r), "map must be an object {name: expression}")

	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, shapeErr
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, shapeErr
	}

	var fields Fields
	pos := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, shapeErr
		}
		name, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, shapeErr
		}
		if obj, ok := v.(map[string]any); ok {
			if expr, ok := obj["expression"].(string); ok {
				v = expr
			}
		}
		if i, dup := pos[name]; dup {
			fields[i].Value = v
			continue
		}
		pos[name] = len(fields)
		fields = append(fields, barbql.Field{Name: name, Value: v})
	}
	return fields, nil
}

// Validate runs the data-free expression checks over every step of q and
// returns a *barbql.ValidationError carrying all findings, or nil.
func Validate(q *Query, reg *functions.Registry) error {
	steps := q.Steps
	if !q.IsMulti() {
		steps = []Step{q.Step}
	}
	var findings []barbql.Finding
	for _, s := range steps {
		in := barbql.ValidateInput{Map: s.Map, Where: s.Where, GroupBy: s.GroupBy}
		if s.Select != nil {
			in.Select = s.Select.Terms
		}
		err := barbql.Validate(in, reg)
		if ve, ok := err.(*barbql.ValidationError); ok {
			findings = append(findings, ve.Findings...)
		}
	}
	if len(findings) == 0 {
		return nil
	}
	return &barbql.ValidationError{Findings: findings}
}

// Check decodes and validates data and returns every problem found. An
// empty result means the query is valid.
func Check(data []byte, reg *functions.Registry) []barbql.Finding {
	q, err := Decode(data)
	if err == nil {
		err = Validate(q, reg)
	}
	if err == nil {
		return []barbql.Finding{}
	}
	qe := AsError(err)
	if len(qe.Findings) > 0 {
		return qe.Findings
	}
	return []barbql.Finding{{Step: qe.Step, Expression: qe.Expression, Message: qe.Message, Hint: qe.Hint}}
}

// Record returns q in canonical field order for echoing in responses.
func (q *Query) Record() Record {
	var r Record
	if q.IsMulti() {
		steps := make([]Record, len(q.Steps))
		for i := range q.Steps {
			steps[i] = q.Steps[i].record()
		}
		r = append(r, Cell{FieldSteps, steps})
	} else {
		r = q.Step.record()
	}
	if len(q.Columns) > 0 {
		r = append(r, Cell{FieldColumns, q.Columns})
	}
	return r
}

func (s *Step) record() Record {
	var r Record
	add := func(key string, v any, present bool) {
		if present {
			r = append(r, Cell{key, v})
		}
	}
	add(FieldSession, s.Session, s.Session != "")
	add(FieldFrom, s.From, s.From != "")
	add(FieldPeriod, s.Period, s.Period != "")
	add(FieldMap, s.Map.record(), len(s.Map) > 0)
	add(FieldWhere, s.Where, s.Where != "")
	add(FieldGroupBy, groupByValue(s.GroupBy), len(s.GroupBy) > 0)
	if s.Select != nil {
		var v any = s.Select.Terms
		if !s.Select.Multi() {
			v = s.Select.Terms[0]
		}
		r = append(r, Cell{FieldSelect, v})
	}
	add(FieldSort, s.Sort, s.Sort != "")
	add(FieldLimit, s.Limit, s.Limit > 0)
	return r
}

func groupByValue(keys []string) any {
	if len(keys) == 1 {
		return keys[0]
	}
	return keys
}

func trimAll(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
