package query

import (
	"sort"
	"strings"

	"github.com/seenimoa/barb/internal/table"
)

// indexName is how the timestamp index is addressed in sort and in error
// listings; "date" is an alias for it.
const indexName = "timestamp"

// sortTable orders t by "col" or "col desc". The index is addressed as
// date or timestamp. Missing values sort last in both directions.
func sortTable(t *table.Table, spec string) (*table.Table, error) {
	parts := strings.Fields(spec)
	if len(parts) == 0 {
		return t, nil
	}
	name := parts[0]
	desc := len(parts) > 1 && strings.EqualFold(parts[1], "desc")

	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}

	if t.HasIndex() && (name == "date" || name == indexName) {
		index := t.Index()
		sort.SliceStable(rows, func(a, b int) bool {
			d := index[rows[a]].Compare(index[rows[b]])
			if desc {
				return d > 0
			}
			return d < 0
		})
		return t.Take(rows), nil
	}

	col, ok := t.Column(name)
	if !ok {
		names := t.Names()
		if t.HasIndex() {
			names = append(names, indexName)
		}
		sort.Strings(names)
		return nil, validationError("sort", spec, "Sort column '%s' not found. Available: %s", name, strings.Join(names, ", "))
	}
	sort.SliceStable(rows, func(a, b int) bool {
		i, j := rows[a], rows[b]
		mi, mj := col.IsMissing(i), col.IsMissing(j)
		if mi || mj {
			return !mi && mj
		}
		d := col.Compare(i, j)
		if desc {
			return d > 0
		}
		return d < 0
	})
	return t.Take(rows), nil
}
