package barbql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/seenimoa/barb/internal/functions"
)

// ════════════════════════════════════════════════════════════════════
// Pre-Validator
// ════════════════════════════════════════════════════════════════════

// Field is one map entry in declaration order. Value is whatever the query
// carried; anything but a string is reported.
type Field struct {
	Name  string
	Value any
}

// ValidateInput holds the expression-bearing fields of one query (or one
// step of a multi-step query).
type ValidateInput struct {
	Map     []Field
	Where   string
	Select  []string // already split into terms
	GroupBy []string
}

var (
	aggregateShape = regexp.MustCompile(`^(\w+)\((\w+)?\)$`)
	leadingCall    = regexp.MustCompile(`^(\w+)\(`)
)

// columnSuggestions maps functions commonly grouped by to the column name
// offered in the hint.
var columnSuggestions = map[string]string{
	"dayofweek": "weekday",
	"dayname":   "day_name",
	"monthname": "month_name",
}

type validator struct {
	reg      *functions.Registry
	findings []Finding
}

// Validate checks every expression in q without touching any data and
// returns a *ValidationError carrying all findings, or nil.
func Validate(q ValidateInput, reg *functions.Registry) error {
	v := &validator{reg: reg}

	for _, f := range q.Map {
		expr, ok := f.Value.(string)
		if !ok {
			v.add(Finding{
				Step:       "map",
				Expression: fmt.Sprint(f.Value),
				Message:    fmt.Sprintf("map['%s'] must be a string expression, got %s", f.Name, JSONTypeName(f.Value)),
			})
			continue
		}
		v.checkExpression(expr, fmt.Sprintf("map['%s']", f.Name), "map")
	}

	if q.Where != "" {
		v.checkExpression(q.Where, "where", "where")
	}

	for _, s := range q.Select {
		if len(q.GroupBy) > 0 {
			v.checkGroupSelect(s)
		} else {
			v.checkExpression(s, "select", "select")
		}
	}

	v.checkGroupBy(q.GroupBy)

	if len(v.findings) == 0 {
		return nil
	}
	return &ValidationError{Findings: v.findings}
}

func (v *validator) add(f Finding) {
	v.findings = append(v.findings, f)
}

func (v *validator) checkExpression(expr, label, step string) {
	if hasLoneEquals(expr) {
		v.add(Finding{
			Step:       step,
			Expression: expr,
			Message:    fmt.Sprintf("Syntax error in %s: use '==' for comparison, not '='", label),
			Hint:       "Replace '=' with '=='.",
		})
		return
	}

	node, err := ParseTree(expr)
	if err != nil {
		f := Finding{Step: step, Expression: expr, Message: fmt.Sprintf("Syntax error in %s: %s", label, err)}
		if pe, ok := err.(*ParseError); ok {
			f.Message = fmt.Sprintf("Syntax error in %s: %s", label, pe.Message)
			f.Hint = pe.Hint
		}
		v.add(f)
		return
	}

	checkTree(node, v.reg, label, func(bad Node, msg string) {
		v.add(Finding{Step: step, Expression: exprText(bad), Message: msg})
	})
}

// checkGroupSelect checks a select term under group_by: it must be
// func(column) with a group aggregate, or count().
func (v *validator) checkGroupSelect(expr string) {
	expr = strings.TrimSpace(expr)
	if expr == "count()" {
		return
	}
	m := aggregateShape.FindStringSubmatch(expr)
	if m == nil {
		v.add(Finding{
			Step:       "select",
			Expression: expr,
			Message:    fmt.Sprintf("Cannot parse aggregate expression: '%s'. Expected: func(column) or count()", expr),
		})
		return
	}
	if _, ok := functions.GroupAggregate(m[1]); !ok {
		v.add(Finding{
			Step:       "select",
			Expression: expr,
			Message: fmt.Sprintf("Unknown aggregate function '%s'. Available: %s",
				m[1], strings.Join(functions.GroupAggregateNames(), ", ")),
		})
	}
}

func (v *validator) checkGroupBy(cols []string) {
	if len(cols) == 1 {
		col := cols[0]
		if strings.Contains(col, "(") {
			name := suggestColumnName(col)
			v.add(Finding{
				Step:       "group_by",
				Expression: col,
				Message:    "group_by must be a column name, not an expression. Create the column in 'map' first, then group by it.",
				Hint:       fmt.Sprintf(`Use map: {"%s": "%s"}, then group_by: "%s"`, name, col, name),
			})
		}
		return
	}
	for _, col := range cols {
		if strings.Contains(col, "(") {
			v.add(Finding{
				Step:       "group_by",
				Expression: col,
				Message:    fmt.Sprintf("group_by must be column names, not expressions. Create '%s' in 'map' first.", col),
			})
		}
	}
}

// ────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────

// hasLoneEquals reports whether expr contains an '=' that is not part of
// ==, !=, <= or >=. Quoted text is ignored.
func hasLoneEquals(expr string) bool {
	rs := []rune(expr)
	var quote rune
	for i, r := range rs {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '=':
			if i > 0 && strings.ContainsRune("=!<>", rs[i-1]) {
				continue
			}
			if i+1 < len(rs) && rs[i+1] == '=' {
				continue
			}
			return true
		}
	}
	return false
}

// suggestColumnName proposes a map column for a function call used as a
// group key: dayofweek() becomes weekday.
func suggestColumnName(expr string) string {
	m := leadingCall.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return "col"
	}
	if s, ok := columnSuggestions[m[1]]; ok {
		return s
	}
	return m[1]
}

// exprText renders a node without the outermost parentheses.
func exprText(n Node) string {
	s := n.String()
	switch n.(type) {
	case *BinaryExpr, *UnaryExpr, *CompareExpr, *LogicalExpr:
		return strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	return s
}

// JSONTypeName names the JSON type of a decoded value for error messages.
func JSONTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, int, int64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// SplitSelect splits a select string into terms at top-level commas, so
// that percentile(close, 0.9) stays one term.
func SplitSelect(s string) []string {
	var parts []string
	depth, start := 0, 0
	var quote rune
	for i, r := range s {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = appendTerm(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return appendTerm(parts, s[start:])
}

func appendTerm(parts []string, term string) []string {
	if term = strings.TrimSpace(term); term != "" {
		parts = append(parts, term)
	}
	return parts
}
