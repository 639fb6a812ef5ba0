package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/table"
)

const countTerm = "count()"

var (
	groupTermPattern = regexp.MustCompile(`^(\w+)\((\w+)\)`)
	colNamePattern   = regexp.MustCompile(`^(\w+)\((\w+)(?:,\s*\w+)?\)`)
)

// integralAggregates keep an integer column integer.
var integralAggregates = map[string]bool{"sum": true, "max": true, "min": true}

// AggregateColumnName names the output column of a select term:
// count() → count, mean(range) → mean_range, anything else verbatim.
func AggregateColumnName(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == countTerm {
		return "count"
	}
	if m := colNamePattern.FindStringSubmatch(expr); m != nil {
		return m[1] + "_" + m[2]
	}
	return expr
}

// groupAggregate partitions t by the key columns and reduces each select
// term per group. Groups come out ordered by key; rows with a missing key
// are dropped.
func groupAggregate(t *table.Table, keys, terms []string) (*table.Table, error) {
	keyCols := make([]*table.Column, len(keys))
	for i, k := range keys {
		c, ok := t.Column(k)
		if !ok {
			return nil, validationError("group_by", k, "Column '%s' not found. Available: %s", k, t.Available())
		}
		keyCols[i] = c
	}

	rows := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if !anyMissing(keyCols, i) {
			rows = append(rows, i)
		}
	}
	compareKeys := func(a, b int) int {
		for _, c := range keyCols {
			if d := c.Compare(a, b); d != 0 {
				return d
			}
		}
		return 0
	}
	sort.SliceStable(rows, func(a, b int) bool { return compareKeys(rows[a], rows[b]) < 0 })

	var groups [][]int
	for _, r := range rows {
		if n := len(groups); n > 0 && compareKeys(groups[n-1][0], r) == 0 {
			groups[n-1] = append(groups[n-1], r)
			continue
		}
		groups = append(groups, []int{r})
	}

	firsts := make([]int, len(groups))
	for i, g := range groups {
		firsts[i] = g[0]
	}
	out := table.NewFrame(len(groups))
	for i, k := range keys {
		if err := out.Set(k, keyCols[i].Take(firsts)); err != nil {
			return nil, err
		}
	}

	for _, term := range terms {
		col, err := reduceGroups(t, groups, strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		if err := out.Set(AggregateColumnName(term), col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func reduceGroups(t *table.Table, groups [][]int, term string) (*table.Column, error) {
	if term == countTerm {
		sizes := make([]float64, len(groups))
		for i, g := range groups {
			sizes[i] = float64(len(g))
		}
		return table.NewInt(sizes), nil
	}

	m := groupTermPattern.FindStringSubmatch(term)
	if m == nil {
		return nil, &Error{Type: TypeParse, Step: "select", Expression: term,
			Message: fmt.Sprintf("Cannot parse aggregate expression: '%s'", term)}
	}
	fn, colName := m[1], m[2]
	reduce, ok := functions.GroupAggregate(fn)
	if !ok {
		return nil, &Error{Type: TypeUnknownFunction, Step: "select", Expression: term,
			Message: fmt.Sprintf("Unknown aggregate function '%s' in group context", fn)}
	}
	src, ok := t.Column(colName)
	if !ok {
		return nil, validationError("select", term, "Column '%s' not found. Available: %s", colName, t.Available())
	}

	data := src.Floats()
	vals := make([]float64, len(groups))
	buf := make([]float64, 0, 64)
	for i, g := range groups {
		buf = buf[:0]
		for _, r := range g {
			buf = append(buf, data[r])
		}
		vals[i] = reduce(buf)
	}
	if integralAggregates[fn] && (src.Kind() == table.Int || src.Kind() == table.Bool) {
		return table.NewInt(vals), nil
	}
	return table.NewFloat(vals), nil
}

func anyMissing(cols []*table.Column, i int) bool {
	for _, c := range cols {
		if c.IsMissing(i) {
			return true
		}
	}
	return false
}

// aggregate reduces t to one value per select term without grouping.
func aggregate(t *table.Table, terms []string, reg *functions.Registry) ([]table.Scalar, error) {
	out := make([]table.Scalar, len(terms))
	for i, term := range terms {
		v, err := barbql.Evaluate(term, t, reg)
		if err != nil {
			return nil, wrapExpr(err, "select", term)
		}
		if v.Type != table.ScalarValue {
			return nil, &Error{Type: TypeType, Step: "select", Expression: term,
				Message: fmt.Sprintf("select must produce a single value, got %s. Wrap it in an aggregate such as mean(...) or last(...)", v.TypeName())}
		}
		out[i] = v.Scalar
	}
	return out, nil
}
