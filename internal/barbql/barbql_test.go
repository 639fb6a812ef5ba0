package barbql

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

var start = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC) // a Tuesday

// makeTable builds n rising one-minute bars: open p, high p+2, low p-1,
// close p+1 with p = 100+i.
func makeTable(n int) *table.Table {
	bars := make([]models.OHLCV, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p,
			High:      p + 2,
			Low:       p - 1,
			Close:     p + 1,
			Volume:    int64(1000 + i),
		}
	}
	return table.FromBars(bars)
}

func countTrue(t *testing.T, v table.Value) int {
	t.Helper()
	require.True(t, v.IsColumn(), "expected a column, got %s", v.TypeName())
	require.Equal(t, table.Bool, v.Column.Kind())
	n := 0
	for _, b := range v.Column.Bools() {
		if b {
			n++
		}
	}
	return n
}

// ════════════════════════════════════════════════════════════════════
// Lexer Tests
// ════════════════════════════════════════════════════════════════════

func TestLexer_Operators(t *testing.T) {
	tokens, err := NewLexer("+ - * / // ** % == != <= >= < > = ( ) [ ] , .").Tokenize()
	require.NoError(t, err)

	expected := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenDoubleSlash, TokenDoubleStar, TokenPercent,
		TokenEQ, TokenNEQ, TokenLTE, TokenGTE, TokenLT, TokenGT, TokenAssign,
		TokenLParen, TokenRParen, TokenLBracket, TokenRBracket, TokenComma, TokenDot,
		TokenEOF,
	}
	require.Len(t, tokens, len(expected))
	for i, typ := range expected {
		assert.Equal(t, typ, tokens[i].Type, "token %d", i)
	}
}

func TestLexer_LiteralsAndKeywords(t *testing.T) {
	tokens, err := NewLexer(`rsi(close, 14) < 30.5 and not 'Mon' in x or 1e3`).Tokenize()
	require.NoError(t, err)

	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{
		TokenIdentifier, TokenLParen, TokenIdentifier, TokenComma, TokenNumber, TokenRParen,
		TokenLT, TokenNumber, TokenAND, TokenNOT, TokenString, TokenIN, TokenIdentifier,
		TokenOR, TokenNumber, TokenEOF,
	}, types)
	assert.Equal(t, "30.5", tokens[7].Value)
	assert.Equal(t, "Mon", tokens[10].Value)
	assert.Equal(t, "1e3", tokens[14].Value)
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{`'open`, "unterminated string literal"},
		{`close $ 1`, "unexpected character"},
		{`12abc`, "invalid number literal"},
		{`!close`, "unexpected '!'"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestLexer_Positions(t *testing.T) {
	tokens, err := NewLexer("a +\n  b").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 3, tokens[2].Column)
}

// ════════════════════════════════════════════════════════════════════
// Parser Tests
// ════════════════════════════════════════════════════════════════════

func TestParser_Precedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a + b * c", "(a + (b * c))"},
		{"(a + b) * c", "((a + b) * c)"},
		{"a - b - c", "((a - b) - c)"},
		{"not a and b", "((not a) and b)"},
		{"a or b and c", "(a or (b and c))"},
		{"a and b and c", "(a and b and c)"},
		{"1 < x <= 3", "(1 < x <= 3)"},
		{"x not in [1, 2]", "(x not in [1, 2])"},
		{"-x ** 2", "(-(x ** 2))"},
		{"-5", "-5"},
		{"high - low > prev(high - low)", "((high - low) > prev((high - low)))"},
		{"if(green(), 1, 0)", "if(green(), 1, 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := ParseTree(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestParser_Literals(t *testing.T) {
	node, err := Parse("14")
	require.NoError(t, err)
	num := node.(*NumberLiteral)
	assert.True(t, num.IsInt)
	assert.Equal(t, 14.0, num.Value)

	node, err = Parse("2.5")
	require.NoError(t, err)
	assert.False(t, node.(*NumberLiteral).IsInt)

	node, err = Parse("True")
	require.NoError(t, err)
	assert.True(t, node.(*BoolLiteral).Value)

	node, err = Parse("true")
	require.NoError(t, err)
	assert.Equal(t, "true", node.(*Identifier).Name)
}

func TestParser_RejectsOutsideLanguage(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"close.shift(1)", "Only simple function calls allowed (no methods)"},
		{"close.values", "Unsupported expression type 'Attribute'"},
		{"close[0]", "Unsupported expression type 'Subscript'"},
		{"(open, close)", "Unsupported expression type 'Tuple'"},
		{"close % 2", "Unsupported operator '%'"},
		{"close ** 2", "Unsupported operator '**'"},
		{"close // 2", "Unsupported operator '//'"},
		{"green() & red()", "Unsupported operator '&'"},
		{"close is None", "Unsupported comparison 'is'"},
		{"~green()", "Unsupported unary operator '~'"},
		{"lambda: 1", "lambda expressions are not supported"},
		{"rsi(close, n=14)", "keyword arguments are not supported"},
		{"close = 1", "unexpected '='"},
		{"close >", "unexpected end of expression"},
		{"rsi(close", "expected ')'"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestParser_AssignHint(t *testing.T) {
	_, err := Parse("close = 1")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "use '==' for comparison", pe.Hint)
	assert.Equal(t, 1, pe.Line)
	assert.Equal(t, 7, pe.Column)
	assert.Contains(t, pe.Error(), "(hint: use '==' for comparison)")
}

// ════════════════════════════════════════════════════════════════════
// Evaluator Tests
// ════════════════════════════════════════════════════════════════════

func TestEvaluate_Scalars(t *testing.T) {
	tbl := makeTable(3)
	reg := functions.Builtin()

	tests := []struct {
		expr string
		want any
	}{
		{"7 - 2", int64(5)},
		{"10 / 4", 2.5},
		{"2 * 1.5", 3.0},
		{"1 < 2 < 3", true},
		{"3 > 2 > 2", false},
		{"true", true},
		{"False", false},
		{"not true", false},
		{"true and false", false},
		{"true or false", true},
		{"'a' + 'b'", "ab"},
		{"2 in [1, 2, 3]", true},
		{"'x' not in ['x']", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(tt.expr, tbl, reg)
			require.NoError(t, err)
			require.Equal(t, table.ScalarValue, v.Type)
			assert.Equal(t, tt.want, v.Scalar.Interface())
		})
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	v, err := Evaluate("1 / 0", makeTable(1), functions.Builtin())
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.Scalar.Num, 1))

	v, err = Evaluate("(close - close) / (close - close)", makeTable(3), functions.Builtin())
	require.NoError(t, err)
	for _, x := range v.Column.Floats() {
		assert.True(t, math.IsNaN(x))
	}
}

func TestEvaluate_Columns(t *testing.T) {
	tbl := makeTable(10) // close = 101..110
	reg := functions.Builtin()

	t.Run("arithmetic broadcasts", func(t *testing.T) {
		v, err := Evaluate("high - low", tbl, reg)
		require.NoError(t, err)
		require.True(t, v.IsColumn())
		assert.Equal(t, table.Float, v.Column.Kind())
		for _, x := range v.Column.Floats() {
			assert.InDelta(t, 3.0, x, 1e-9)
		}
	})

	t.Run("integer column stays integer", func(t *testing.T) {
		v, err := Evaluate("volume + 1", tbl, reg)
		require.NoError(t, err)
		assert.Equal(t, table.Int, v.Column.Kind())
		assert.Equal(t, int64(1001), v.Column.At(0).Interface())
	})

	t.Run("negation", func(t *testing.T) {
		v, err := Evaluate("-close", tbl, reg)
		require.NoError(t, err)
		assert.InDelta(t, -101.0, v.Column.Floats()[0], 1e-9)
	})

	counts := []struct {
		expr string
		want int
	}{
		{"close > 105", 5},
		{"close >= 105", 6},
		{"close == 101", 1},
		{"close != 101", 9},
		{"105 < close <= 108", 3},
		{"close > 105 and close < 108", 2},
		{"close < 103 or close > 108", 4},
		{"not (close > 105)", 5},
		{"close > 105 or false", 5},
		{"close in [101, 103, 999]", 2},
		{"close not in [101, 103]", 8},
		{"dayofweek() in [1]", 10},
		{"date() >= '2024-01-02'", 10},
		{"date() < date('2024-01-02')", 0},
		{"close == 'x'", 0},
		{"close != 'x'", 10},
		{"green()", 10},
		{"close > prev(close)", 9},
	}
	for _, tt := range counts {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(tt.expr, tbl, reg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, countTrue(t, v))
		})
	}
}

func TestEvaluate_FunctionCalls(t *testing.T) {
	tbl := makeTable(10)
	reg := functions.Builtin()

	v, err := Evaluate("mean(close)", tbl, reg)
	require.NoError(t, err)
	assert.InDelta(t, 105.5, v.Scalar.Float(), 1e-9)

	v, err = Evaluate("count()", tbl, reg)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.Scalar.Interface())

	v, err = Evaluate("sum(close > 105)", tbl, reg)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v.Scalar.Float(), 1e-9)

	v, err = Evaluate("rolling_min(high - low, 7)", tbl, reg)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v.Column.Floats()[5]))
	assert.InDelta(t, 3.0, v.Column.Floats()[6], 1e-9)
}

func TestEvaluate_Errors(t *testing.T) {
	tbl := makeTable(5)
	reg := functions.Builtin()

	tests := []struct {
		expr string
		kind ErrorKind
		msg  string
	}{
		{"foo > 1", ExpressionError, "Unknown column 'foo'. Available: close, high, low, open, volume"},
		{"nope(close)", UnknownFunction, "Unknown function 'nope'. Available: "},
		{"abs()", ExpressionError, "Wrong arguments for 'abs': got 0 args"},
		{"rolling_mean(close, 0)", TypeError, "must be a positive integer"},
		{"'a' + 1", TypeError, "Unsupported operand types for +"},
		{"close in 5", TypeError, "'in' requires a list on the right"},
		{"close < 'x'", TypeError, "Cannot compare"},
		{"[close]", TypeError, "List elements must be constants"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(tt.expr, tbl, reg)
			var ee *EvalError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.kind, ee.Kind)
			assert.Contains(t, ee.Message, tt.msg)
		})
	}

	t.Run("parse errors surface as ParseError", func(t *testing.T) {
		_, err := Evaluate("close.mean()", tbl, reg)
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	tbl := makeTable(50)
	reg := functions.Builtin()
	expr := "if(rsi(close, 14) > 50, close - ema(close, 10), 0)"

	a, err := Evaluate(expr, tbl, reg)
	require.NoError(t, err)
	b, err := Evaluate(expr, tbl, reg)
	require.NoError(t, err)

	xs, ys := a.Column.Floats(), b.Column.Floats()
	require.Len(t, ys, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) {
			assert.True(t, math.IsNaN(ys[i]))
			continue
		}
		assert.Equal(t, xs[i], ys[i])
	}
}

// ════════════════════════════════════════════════════════════════════
// Pre-Validator Tests
// ════════════════════════════════════════════════════════════════════

func TestValidate_CollectsEveryFinding(t *testing.T) {
	q := ValidateInput{
		Map: []Field{
			{Name: "range", Value: "high - low"},
			{Name: "signal", Value: "foo(close)"},
		},
		Where:   "range = 10",
		GroupBy: []string{"dayofweek()"},
	}
	err := Validate(q, functions.Builtin())

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Findings, 3)

	assert.Equal(t, "map", ve.Findings[0].Step)
	assert.Equal(t, "foo(close)", ve.Findings[0].Expression)
	assert.True(t, strings.HasPrefix(ve.Findings[0].Message, "Unknown function 'foo' in map['signal']. Available: "))

	assert.Equal(t, "where", ve.Findings[1].Step)
	assert.Equal(t, "Syntax error in where: use '==' for comparison, not '='", ve.Findings[1].Message)
	assert.Equal(t, "Replace '=' with '=='.", ve.Findings[1].Hint)

	assert.Equal(t, "group_by", ve.Findings[2].Step)
	assert.Equal(t, `Use map: {"weekday": "dayofweek()"}, then group_by: "weekday"`, ve.Findings[2].Hint)

	assert.True(t, strings.HasPrefix(err.Error(), "3 expression error(s): "))
}

func TestValidate_GroupSelect(t *testing.T) {
	q := ValidateInput{
		Select:  []string{"mean(range)", "count()", "foo(range)", "mean(high - low)"},
		GroupBy: []string{"weekday"},
	}
	err := Validate(q, functions.Builtin())

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Findings, 2)
	assert.Equal(t, "Unknown aggregate function 'foo'. Available: max, mean, median, min, std, sum", ve.Findings[0].Message)
	assert.Equal(t, "Cannot parse aggregate expression: 'mean(high - low)'. Expected: func(column) or count()", ve.Findings[1].Message)
}

func TestValidate_Cases(t *testing.T) {
	reg := functions.Builtin()

	tests := []struct {
		name string
		q    ValidateInput
		msgs []string
	}{
		{
			name: "valid query",
			q: ValidateInput{
				Map:    []Field{{Name: "r", Value: "high - low"}},
				Where:  "r > 2 and dayofweek() in [0, 4]",
				Select: []string{"mean(r)", "percentile(r, 0.9)"},
			},
		},
		{
			name: "non-string map value",
			q:    ValidateInput{Map: []Field{{Name: "x", Value: 5.0}}},
			msgs: []string{"map['x'] must be a string expression, got number"},
		},
		{
			name: "syntax error",
			q:    ValidateInput{Where: "close >"},
			msgs: []string{"Syntax error in where: unexpected end of expression"},
		},
		{
			name: "method call",
			q:    ValidateInput{Where: "close.rolling(5)"},
			msgs: []string{"Only simple function calls allowed in where (no methods)"},
		},
		{
			name: "unsupported operator in select",
			q:    ValidateInput{Select: []string{"sum(close) % 2"}},
			msgs: []string{"Unsupported operator '%' in select"},
		},
		{
			name: "unknown function nested in args",
			q:    ValidateInput{Select: []string{"mean(bogus(close))"}},
			msgs: []string{"Unknown function 'bogus' in select. Available: "},
		},
		{
			name: "group_by list entry",
			q:    ValidateInput{GroupBy: []string{"year", "month()"}},
			msgs: []string{"group_by must be column names, not expressions. Create 'month()' in 'map' first."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q, reg)
			if len(tt.msgs) == 0 {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Findings, len(tt.msgs))
			for i, msg := range tt.msgs {
				assert.True(t, strings.HasPrefix(ve.Findings[i].Message, msg), "got %q", ve.Findings[i].Message)
			}
		})
	}
}

func TestHasLoneEquals(t *testing.T) {
	tests := map[string]bool{
		"a = b":          true,
		"a=b":            true,
		"a == b":         false,
		"a != b":         false,
		"a <= b":         false,
		"a >= b":         false,
		"name == 'x=y'":  false,
		"prev(close)= 1": true,
	}
	for expr, want := range tests {
		assert.Equal(t, want, hasLoneEquals(expr), expr)
	}
}

func TestSuggestColumnName(t *testing.T) {
	assert.Equal(t, "weekday", suggestColumnName("dayofweek()"))
	assert.Equal(t, "month", suggestColumnName("month()"))
	assert.Equal(t, "col", suggestColumnName("(a)"))
}

func TestSplitSelect(t *testing.T) {
	assert.Equal(t, []string{"mean(range)", "count()"}, SplitSelect("mean(range), count()"))
	assert.Equal(t, []string{"percentile(close, 0.9)"}, SplitSelect("percentile(close, 0.9)"))
	assert.Equal(t, []string{"a"}, SplitSelect(" , a,"))
	assert.Nil(t, SplitSelect(""))
}

// ════════════════════════════════════════════════════════════════════
// REPL Tests
// ════════════════════════════════════════════════════════════════════

func TestREPL_Session(t *testing.T) {
	in := strings.NewReader(".columns\nhigh - low\nmean(close)\nbogus\n.history\n.quit\n")
	var out bytes.Buffer

	r := NewREPLWithIO(functions.Builtin(), nil, in, &out)
	r.SetTable("ES", makeTable(10))
	r.Run()

	s := out.String()
	assert.Contains(t, s, "open, high, low, close, volume (10 rows)")
	assert.Contains(t, s, "→ float column[10]")
	assert.Contains(t, s, "→ 105.5")
	assert.Contains(t, s, "Error: Unknown column 'bogus'")
	assert.Contains(t, s, "  1  high - low")
	assert.Contains(t, s, "Goodbye!")
	assert.Equal(t, []string{"high - low", "mean(close)", "bogus"}, r.History())
}

func TestREPL_Load(t *testing.T) {
	var gotSymbol, gotTF string
	load := func(symbol, tf string) (*table.Table, error) {
		gotSymbol, gotTF = symbol, tf
		return makeTable(4), nil
	}
	in := strings.NewReader("close\n.load es daily\ncount()\n")
	var out bytes.Buffer

	NewREPLWithIO(functions.Builtin(), load, in, &out).Run()

	s := out.String()
	assert.Contains(t, s, "No data loaded")
	assert.Contains(t, s, "Loaded ES: 4 bars")
	assert.Contains(t, s, "→ 4")
	assert.Equal(t, "es", gotSymbol)
	assert.Equal(t, "daily", gotTF)
}

func TestREPL_Functions(t *testing.T) {
	in := strings.NewReader(".functions\n")
	var out bytes.Buffer
	NewREPLWithIO(functions.Builtin(), nil, in, &out).Run()
	assert.Contains(t, out.String(), "rsi")
	assert.Contains(t, out.String(), "Built-in Functions")
}
