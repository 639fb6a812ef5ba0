package query

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// DefaultPrecision is the number of decimals calculated values are
// rounded to in output.
const DefaultPrecision = 4

// Executor runs queries. It holds no per-query state and is safe for
// concurrent use; every Execute works on its own table snapshot.
type Executor struct {
	reg           *functions.Registry
	log           logrus.FieldLogger
	precision     int
	defaultTF     models.Timeframe
	maxSourceRows int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for per-stage debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithPrecision sets how many decimals calculated values keep. A negative
// value disables rounding.
func WithPrecision(p int) Option {
	return func(e *Executor) { e.precision = p }
}

// WithDefaultTimeframe sets the timeframe used when a query has no from.
func WithDefaultTimeframe(tf models.Timeframe) Option {
	return func(e *Executor) {
		if tf.Valid() {
			e.defaultTF = tf
		}
	}
}

// WithMaxSourceRows caps how many source rows a response carries. The
// count is still reported in full. Zero means no cap.
func WithMaxSourceRows(n int) Option {
	return func(e *Executor) { e.maxSourceRows = max(n, 0) }
}

// NewExecutor creates an executor over the given function registry.
func NewExecutor(reg *functions.Registry, opts ...Option) *Executor {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	e := &Executor{
		reg:       reg,
		log:       quiet,
		precision: DefaultPrecision,
		defaultTF: models.Timeframe1Min,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the function registry the executor evaluates with.
func (e *Executor) Registry() *functions.Registry { return e.reg }

// run carries the state of one Execute call.
type run struct {
	*Executor
	log      *logrus.Entry
	warnings []string
}

// Execute validates q and runs it over t. sessions are the named sessions
// of the instrument t belongs to. Any failure, including a panic inside a
// stage, is returned as *Error.
func (e *Executor) Execute(q *Query, t *table.Table, sessions market.Sessions) (resp *Response, err error) {
	started := time.Now()
	r := &run{Executor: e, log: e.log.WithField("component", "query"), warnings: []string{}}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("query panicked")
			resp, err = nil, &Error{Type: TypeInternal, Step: "execute", Message: fmt.Sprintf("internal error: %v", rec)}
		}
	}()

	if err := Validate(q, e.reg); err != nil {
		return nil, AsError(err)
	}

	if q.IsMulti() {
		resp, err = r.executeSteps(q, t, sessions)
	} else {
		resp, err = r.executeFlat(q, t, sessions)
	}
	if err != nil {
		r.log.WithError(err).Debug("query failed")
		return nil, AsError(err)
	}
	r.log.WithFields(logrus.Fields{
		"type":    resp.Type(),
		"rows":    resp.Metadata.Rows,
		"elapsed": time.Since(started),
	}).Debug("query executed")
	return resp, nil
}

func (r *run) executeFlat(q *Query, t *table.Table, sessions market.Sessions) (*Response, error) {
	t, tf, err := r.scope(q.Step, t, sessions)
	if err != nil {
		return nil, err
	}
	if t, err = r.transform(q.Step, t); err != nil {
		return nil, err
	}
	out, err := r.finalize(q.Step, t)
	if err != nil {
		return nil, err
	}
	v := r.view(q.Step, q.Step.Map, q.Columns, tf)
	return r.respond(out, v, q, q.Session, tf), nil
}

func (r *run) executeSteps(q *Query, t *table.Table, sessions market.Sessions) (*Response, error) {
	first, last := q.Steps[0], q.Steps[len(q.Steps)-1]

	t, tf, err := r.scope(first, t, sessions)
	if err != nil {
		return nil, err
	}
	var maps Fields
	for i, step := range q.Steps {
		if t, err = r.transform(step, t); err != nil {
			return nil, err
		}
		maps = mergeFields(maps, step.Map)
		if i == len(q.Steps)-1 || len(step.GroupBy) == 0 {
			continue
		}
		if t, err = groupAggregate(t, step.GroupBy, selectTerms(step)); err != nil {
			return nil, err
		}
		r.stage(fmt.Sprintf("steps[%d].group_by", i), t)
	}

	out, err := r.finalize(last, t)
	if err != nil {
		return nil, err
	}
	v := r.view(last, maps, q.Columns, tf)
	return r.respond(out, v, q, first.Session, tf), nil
}

// mergeFields appends the entries of b to a; a repeated name keeps its
// first position and takes the later expression.
func mergeFields(a, b Fields) Fields {
	out := append(Fields{}, a...)
	for _, f := range b {
		replaced := false
		for i := range out {
			if out[i].Name == f.Name {
				out[i].Value, replaced = f.Value, true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

func (r *run) stage(name string, t *table.Table) {
	r.log.WithFields(logrus.Fields{"step": name, "rows": t.Len()}).Debug("stage complete")
}

// scope runs the data-scoping stages: session, period, from. When the
// session is known its ids are attached for the session_* functions.
func (r *run) scope(s Step, t *table.Table, sessions market.Sessions) (*table.Table, models.Timeframe, error) {
	tf := r.defaultTF
	if s.From != "" {
		tf = models.Timeframe(s.From)
	}

	if s.Session != "" && HasTimeOfDay(t) {
		var warn string
		t, warn = FilterSession(t, s.Session, sessions)
		if warn != "" {
			r.warnings = append(r.warnings, warn)
			r.log.WithField("session", s.Session).Warn(warn)
		}
		r.stage("session", t)
	}

	if s.Period != "" {
		var err error
		if t, err = FilterPeriod(t, s.Period); err != nil {
			return nil, tf, err
		}
		r.stage("period", t)
	}

	t = Resample(t, tf)
	r.stage("from", t)

	if s.Session != "" {
		if sess, ok := sessions.Lookup(s.Session); ok {
			t = TagSessions(t, sess)
		}
	}
	return t, tf, nil
}

// transform runs map then where.
func (r *run) transform(s Step, t *table.Table) (*table.Table, error) {
	var err error
	if len(s.Map) > 0 {
		if t, err = r.applyMap(t, s.Map); err != nil {
			return nil, err
		}
		r.stage("map", t)
	}
	if s.Where != "" {
		if t, err = r.applyWhere(t, s.Where); err != nil {
			return nil, err
		}
		r.stage("where", t)
	}
	return t, nil
}

// applyMap adds each derived column in declaration order, so later
// entries see earlier ones.
func (r *run) applyMap(t *table.Table, fields Fields) (*table.Table, error) {
	for _, f := range fields {
		expr, ok := f.Value.(string)
		if !ok {
			return nil, &Error{Type: TypeType, Step: "map", Expression: fmt.Sprint(f.Value),
				Message: fmt.Sprintf("map value for '%s' must be a string expression, got %s", f.Name, barbql.JSONTypeName(f.Value))}
		}
		v, err := barbql.Evaluate(expr, t, r.reg)
		if err != nil {
			return nil, wrapExpr(err, "map", expr)
		}
		col := v.Broadcast(t.Len())
		if col == nil {
			return nil, &Error{Type: TypeType, Step: "map", Expression: expr,
				Message: fmt.Sprintf("map value for '%s' must produce a column or a single value, got %s", f.Name, v.TypeName())}
		}
		if t, err = t.With(f.Name, col); err != nil {
			return nil, wrapExpr(err, "map", expr)
		}
	}
	return t, nil
}

// applyWhere keeps the rows where expr is true. expr must produce a
// boolean column; a boolean constant keeps all rows or none.
func (r *run) applyWhere(t *table.Table, expr string) (*table.Table, error) {
	v, err := barbql.Evaluate(expr, t, r.reg)
	if err != nil {
		return nil, wrapExpr(err, "where", expr)
	}
	switch {
	case v.IsColumn() && v.Column.Kind() == table.Bool:
		return t.Filter(v.Column.Bools()), nil
	case v.Type == table.ScalarValue && v.Scalar.Kind == table.Bool:
		return t.Filter(v.Broadcast(t.Len()).Bools()), nil
	}
	return nil, &Error{Type: TypeType, Step: "where", Expression: expr,
		Message: fmt.Sprintf("WHERE must produce a boolean series, got %s", v.TypeName())}
}

// outcome is the result of the group/select/sort/limit stages: either a
// table or one value per select term. rows and source describe the table
// after where, before any aggregation.
type outcome struct {
	table   *table.Table
	names   []string
	values  []table.Scalar
	dict    bool
	grouped bool
	rows    int
	source  *table.Table
}

func selectTerms(s Step) []string {
	if s.Select == nil {
		return []string{countTerm}
	}
	return s.Select.Terms
}

func (r *run) finalize(s Step, t *table.Table) (*outcome, error) {
	out := &outcome{rows: t.Len(), source: t}

	switch {
	case len(s.GroupBy) > 0:
		g, err := groupAggregate(t, s.GroupBy, selectTerms(s))
		if err != nil {
			return nil, err
		}
		out.table, out.grouped = g, true
		r.stage("group_by", g)
	case s.Select != nil:
		vals, err := aggregate(t, s.Select.Terms, r.reg)
		if err != nil {
			return nil, err
		}
		out.values, out.dict = vals, s.Select.Multi()
		for _, term := range s.Select.Terms {
			out.names = append(out.names, AggregateColumnName(term))
		}
		r.stage("select", t)
		return out, nil
	default:
		out.table = t
	}

	if s.Sort != "" {
		sorted, err := sortTable(out.table, s.Sort)
		if err != nil {
			return nil, err
		}
		out.table = sorted
		r.stage("sort", sorted)
	}
	if s.Limit > 0 {
		out.table = out.table.Head(s.Limit)
		r.stage("limit", out.table)
	}
	return out, nil
}

func (r *run) view(last Step, maps Fields, columns []string, tf models.Timeframe) view {
	v := view{
		maps:      maps,
		groupKeys: last.GroupBy,
		columns:   columns,
		hasSelect: last.Select != nil,
		intraday:  tf.IsIntraday(),
		precision: r.precision,
	}
	if parts := strings.Fields(last.Sort); len(parts) > 0 {
		v.sortCol = parts[0]
	}
	return v
}

func (r *run) respond(out *outcome, v view, q *Query, session string, tf models.Timeframe) *Response {
	resp := &Response{
		Metadata: Metadata{Rows: out.rows, From: string(tf), Warnings: r.warnings},
		Query:    q.Record(),
	}
	if session != "" {
		resp.Metadata.Session = &session
	}

	if v.hasSelect && out.source.Len() > 0 {
		n := out.source.Len()
		resp.SourceRowCount = &n
		src := out.source
		if r.maxSourceRows > 0 && n > r.maxSourceRows {
			src = src.Head(r.maxSourceRows)
		}
		resp.SourceRows = v.records(src)
	}

	scanned := out.rows
	if resp.SourceRowCount != nil && *resp.SourceRowCount > 0 {
		scanned = *resp.SourceRowCount
	}

	switch {
	case out.table != nil:
		rows := v.records(out.table)
		resp.Table, resp.Result = rows, rows
		resp.Summary = v.tableSummary(rows, out.grouped)
		if out.grouped {
			resp.Chart = chartFor(out.table, v.groupKeys)
		}
	case out.dict:
		values := make(Record, len(out.values))
		for i, s := range out.values {
			values[i] = Cell{out.names[i], cellValue(out.names[i], s, v.precision)}
		}
		resp.Result = values
		resp.Summary = Record{{"type", ResultDict}, {"values", values}, {"rows_scanned", scanned}}
	default:
		value := cellValue("", out.values[0], v.precision)
		resp.Result = value
		resp.Summary = Record{{"type", ResultScalar}, {"value", value}, {"rows_scanned", scanned}}
	}
	return resp
}

func chartFor(g *table.Table, keys []string) *Chart {
	isKey := map[string]bool{}
	for _, k := range keys {
		isKey[k] = true
	}
	for _, n := range g.Names() {
		if !isKey[n] {
			return &Chart{Category: keys[0], Value: n}
		}
	}
	return nil
}
