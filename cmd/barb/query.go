package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// --- Query Command ---

var queryCmd = &cobra.Command{
	Use:   "query SYMBOL [QUERY]",
	Short: "Run a Barb Script query against an instrument",
	Long: `Run a JSON query against an instrument's bars.

The query comes from the second argument, --file, or stdin.

Examples:
  barb query ES '{"from": "daily", "map": {"range": "high - low"}, "select": "mean(range)"}'
  barb query NQ -f gap_fills.json -o yaml
  echo '{"where": "close > open", "select": "count()"}' | barb query ES`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, formatJSON)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args, 1)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}

		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		resp, err := runQuery(cmd.Context(), e, args[0], raw)
		if err != nil {
			return fail(cmd, format, err)
		}
		if format == formatText {
			return writeResponse(cmd.OutOrStdout(), resp)
		}
		return render(cmd.OutOrStdout(), format, resp)
	},
}

func init() {
	queryCmd.Flags().StringP("file", "f", "", `read the query from a file ("-" for stdin)`)
}

// runQuery decodes, validates and executes one query.
func runQuery(ctx context.Context, e *engines, symbol string, raw []byte) (*query.Response, error) {
	q, err := query.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := query.Validate(q, e.reg); err != nil {
		return nil, err
	}
	t, err := e.store.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sessions, _ := e.store.Registry().Sessions(symbol)
	return e.exec.Execute(q, t, sessions)
}

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:   "validate [QUERY]",
	Short: "Check a query without running it",
	Long: `Decode and validate a query, reporting every problem found.
Exits non-zero when the query is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, formatJSON)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args, 0)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}

		reg := functions.Builtin()
		findings := query.Check(raw, reg)
		if format == formatText {
			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintln(out, "valid")
				return nil
			}
			for _, f := range findings {
				fmt.Fprintf(out, "[%s] %s\n", f.Step, f.Message)
				if f.Hint != "" {
					fmt.Fprintf(out, "  hint: %s\n", f.Hint)
				}
			}
			return errFailed
		}

		if err := render(cmd.OutOrStdout(), format, map[string]any{
			"valid":  len(findings) == 0,
			"errors": findings,
		}); err != nil {
			return err
		}
		if len(findings) > 0 {
			return errFailed
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("file", "f", "", `read the query from a file ("-" for stdin)`)
}

// --- Functions Command ---

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the expression functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, formatText)
		if err != nil {
			return err
		}
		category, _ := cmd.Flags().GetString("category")

		var list []functions.Info
		for _, info := range functions.Builtin().Catalogue() {
			if category == "" || strings.EqualFold(info.Category, category) {
				list = append(list, info)
			}
		}
		if len(list) == 0 && category != "" {
			return fmt.Errorf("no functions in category %q", category)
		}
		if format != formatText {
			return render(cmd.OutOrStdout(), format, list)
		}

		tw := newTable(cmd.OutOrStdout())
		writeRow(tw, "CATEGORY", "SIGNATURE", "GROUP", "DESCRIPTION")
		for _, info := range list {
			group := ""
			if info.GroupAggregate {
				group = "yes"
			}
			writeRow(tw, info.Category, info.Signature, group, info.Description)
		}
		return tw.Flush()
	},
}

func init() {
	functionsCmd.Flags().String("category", "", "only list one category")
}

// --- REPL Command ---

var replCmd = &cobra.Command{
	Use:   "repl [SYMBOL]",
	Short: "Start the interactive expression shell",
	Long: `Evaluate single expressions interactively. Load bars with
.load SYMBOL [timeframe] or pass a symbol to start with it loaded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		load := func(symbol, timeframe string) (*table.Table, error) {
			t, err := e.store.Load(ctx, symbol)
			if err != nil {
				return nil, err
			}
			if timeframe == "" {
				return t, nil
			}
			tf, err := models.ParseTimeframe(timeframe)
			if err != nil {
				return nil, err
			}
			return query.Resample(t, tf), nil
		}

		repl := barbql.NewREPLWithIO(e.reg, load, cmd.InOrStdin(), cmd.OutOrStdout())
		if len(args) == 1 {
			tf, _ := cmd.Flags().GetString("timeframe")
			t, err := load(args[0], tf)
			if err != nil {
				return err
			}
			repl.SetTable(args[0], t)
		}
		repl.Run()
		return nil
	},
}

func init() {
	replCmd.Flags().String("timeframe", "", "resample the initial symbol to this timeframe")
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
