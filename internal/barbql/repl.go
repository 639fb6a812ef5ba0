package barbql

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/table"
)

// ════════════════════════════════════════════════════════════════════
// Interactive Barb REPL
// ════════════════════════════════════════════════════════════════════

const (
	replBanner = `
╔═══════════════════════════════════════════════════╗
║              Barb Interactive Shell               ║
║  Type expressions, e.g. rsi(close, 14) < 30       ║
║  Commands: .help  .load  .columns  .quit          ║
╚═══════════════════════════════════════════════════╝
`
	replPrompt = "barb> "

	// tailRows is how many trailing values a column result prints.
	tailRows = 5
)

// Loader fetches bars for .load SYMBOL [timeframe].
type Loader func(symbol, timeframe string) (*table.Table, error)

// REPL is the interactive expression shell. Expressions are evaluated
// against the most recently loaded table.
type REPL struct {
	reg     *functions.Registry
	load    Loader
	symbol  string
	tbl     *table.Table
	in      io.Reader
	out     io.Writer
	history []string
}

// NewREPL creates a new REPL reading stdin and writing stdout.
func NewREPL(reg *functions.Registry, load Loader) *REPL {
	return NewREPLWithIO(reg, load, os.Stdin, os.Stdout)
}

// NewREPLWithIO creates a REPL with explicit reader/writer (useful for testing).
func NewREPLWithIO(reg *functions.Registry, load Loader, in io.Reader, out io.Writer) *REPL {
	return &REPL{reg: reg, load: load, in: in, out: out}
}

// SetTable makes t the table expressions are evaluated against.
func (r *REPL) SetTable(symbol string, t *table.Table) {
	r.symbol = symbol
	r.tbl = t
}

// Run starts the interactive loop. Blocks until EOF or .quit.
func (r *REPL) Run() {
	fmt.Fprint(r.out, replBanner)
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, r.prompt())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if r.handleCommand(line) {
				return // .quit
			}
			continue
		}

		r.history = append(r.history, line)
		r.execute(line)
	}
}

func (r *REPL) prompt() string {
	if r.symbol == "" {
		return replPrompt
	}
	return strings.ToLower(r.symbol) + "> "
}

// handleCommand processes REPL dot-commands. Returns true if the REPL should exit.
func (r *REPL) handleCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	switch strings.ToLower(fields[0]) {
	case ".quit", ".exit", ".q":
		fmt.Fprintln(r.out, "Goodbye!")
		return true

	case ".help":
		r.printHelp()

	case ".functions", ".funcs":
		r.printFunctions()

	case ".columns", ".cols":
		if r.tbl == nil {
			fmt.Fprintln(r.out, "No data loaded. Use .load SYMBOL [timeframe]")
			break
		}
		fmt.Fprintf(r.out, "  %s (%d rows)\n", strings.Join(r.tbl.Names(), ", "), r.tbl.Len())

	case ".load":
		r.loadTable(fields[1:])

	case ".history":
		for i, h := range r.history {
			fmt.Fprintf(r.out, "  %d  %s\n", i+1, h)
		}

	case ".clear":
		r.history = nil
		fmt.Fprintln(r.out, "History cleared.")

	default:
		fmt.Fprintf(r.out, "Unknown command: %s  (type .help for help)\n", cmd)
	}
	return false
}

func (r *REPL) loadTable(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "Usage: .load SYMBOL [timeframe]")
		return
	}
	if r.load == nil {
		fmt.Fprintln(r.out, "Loading is not available in this shell.")
		return
	}
	tf := ""
	if len(args) > 1 {
		tf = args[1]
	}
	t, err := r.load(args[0], tf)
	if err != nil {
		fmt.Fprintf(r.out, "Load error: %v\n", err)
		return
	}
	r.SetTable(args[0], t)
	fmt.Fprintf(r.out, "Loaded %s: %d bars", strings.ToUpper(args[0]), t.Len())
	if t.Len() > 0 && t.HasIndex() {
		fmt.Fprintf(r.out, " (%s → %s)", t.Time(0).Format(time.DateOnly), t.Time(t.Len()-1).Format(time.DateOnly))
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	help := `
Barb Quick Reference
────────────────────
  high - low                       → Bar range per row
  close > prev(close)              → Up days
  rsi(close, 14) < 30              → Oversold bars
  mean(high - low)                 → Average range
  range() == rolling_min(range(), 7)  → NR7 bars
  dayofweek() in [0, 4]            → Mondays and Fridays

Dot-Commands:
  .load SYM [tf]  Load an instrument (tf: 1m … daily, weekly)
  .columns        List columns of the loaded table
  .functions      List all built-in functions
  .history        Show expression history
  .clear          Clear history
  .quit           Exit REPL
`
	fmt.Fprint(r.out, help)
}

func (r *REPL) printFunctions() {
	byCategory := make(map[string][]string)
	var order []string
	for _, s := range r.reg.Specs() {
		if _, ok := byCategory[s.Category]; !ok {
			order = append(order, s.Category)
		}
		byCategory[s.Category] = append(byCategory[s.Category], s.Name)
	}

	fmt.Fprintln(r.out, "\nBuilt-in Functions")
	fmt.Fprintln(r.out, "──────────────────")
	for _, cat := range order {
		fmt.Fprintf(r.out, "  %s: %s\n", cat, strings.Join(byCategory[cat], ", "))
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) execute(expr string) {
	if r.tbl == nil {
		fmt.Fprintln(r.out, "No data loaded. Use .load SYMBOL [timeframe]")
		return
	}
	start := time.Now()

	result, err := Evaluate(expr, r.tbl, r.reg)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}

	r.formatResult(result)
	fmt.Fprintf(r.out, "  (%s)\n", time.Since(start).Round(time.Millisecond))
}

// formatResult renders a Value to the REPL output.
func (r *REPL) formatResult(v table.Value) {
	switch v.Type {
	case table.ScalarValue:
		fmt.Fprintf(r.out, "→ %s\n", v.Scalar.String())

	case table.ListValue:
		items := make([]string, len(v.List))
		for i, item := range v.List {
			items[i] = item.Scalar.String()
		}
		fmt.Fprintf(r.out, "→ [%s]\n", strings.Join(items, ", "))

	case table.ColumnValue:
		r.formatColumn(v.Column)
	}
}

func (r *REPL) formatColumn(c *table.Column) {
	n := c.Len()
	fmt.Fprintf(r.out, "→ %s column[%d]\n", c.Kind(), n)
	if n == 0 {
		return
	}

	switch c.Kind() {
	case table.Bool:
		hits := 0
		for _, b := range c.Bools() {
			if b {
				hits++
			}
		}
		fmt.Fprintf(r.out, "  True: %d of %d (%.1f%%)\n", hits, n, 100*float64(hits)/float64(n))
	case table.Float, table.Int:
		if mn, mx, avg, ok := columnStats(c.Floats()); ok {
			fmt.Fprintf(r.out, "  Min:   %.4f  Max: %.4f  Avg: %.4f\n", mn, mx, avg)
			if n > 1 {
				fmt.Fprintf(r.out, "  %s\n", sparkline(c.Floats()))
			}
		}
	}

	for i := max(0, n-tailRows); i < n; i++ {
		label := fmt.Sprintf("#%d", i)
		if r.tbl.HasIndex() {
			label = r.tbl.Time(i).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(r.out, "  %s  %s\n", label, c.At(i).String())
	}
}

// ════════════════════════════════════════════════════════════════════
// Formatting Helpers
// ════════════════════════════════════════════════════════════════════

// columnStats returns min, max and mean over the non-NaN values.
func columnStats(data []float64) (mn, mx, avg float64, ok bool) {
	mn, mx = math.Inf(1), math.Inf(-1)
	sum, count := 0.0, 0
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
		mn = math.Min(mn, v)
		mx = math.Max(mx, v)
	}
	if count == 0 {
		return 0, 0, 0, false
	}
	return mn, mx, sum / float64(count), true
}

// sparkline renders an ASCII sparkline, skipping missing values.
func sparkline(data []float64) string {
	mn, mx, _, ok := columnStats(data)
	if !ok {
		return ""
	}
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	span := mx - mn
	if span == 0 {
		span = 1
	}

	// Resample to max 60 chars
	width := min(len(data), 60)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		v := data[i*len(data)/width]
		if math.IsNaN(v) {
			sb.WriteRune(' ')
			continue
		}
		bi := int((v - mn) / span * float64(len(blocks)-1))
		bi = max(0, min(bi, len(blocks)-1))
		sb.WriteRune(blocks[bi])
	}
	return sb.String()
}

// History returns the REPL's expression history.
func (r *REPL) History() []string {
	return r.history
}
