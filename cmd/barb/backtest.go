package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/report"
	"github.com/seenimoa/barb/pkg/models"
)

// --- Backtest Command ---

var backtestCmd = &cobra.Command{
	Use:   "backtest SYMBOL [STRATEGY]",
	Short: "Backtest a strategy against an instrument",
	Long: `Simulate a strategy over an instrument's bars.

The strategy is a JSON object, or an array of objects to run several
strategies concurrently over the same data. It comes from the second
argument, --file, or stdin.

Example:
  barb backtest ES '{"entry": "rsi(close, 14) < 30", "direction": "long", "stop_loss": 20, "take_profit": "2%"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, formatText)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args, 1)
		if err != nil {
			return fmt.Errorf("read strategy: %w", err)
		}
		docs, err := splitStrategies(raw)
		if err != nil {
			return err
		}

		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		opts := runOptions(cmd, e, args[0])
		jobs := make([]backtest.Job, len(docs))
		for i, doc := range docs {
			strat, err := backtest.DecodeStrategy(doc)
			if err == nil {
				err = strat.Validate(e.reg)
			}
			if err != nil {
				return fail(cmd, format, err)
			}
			jobs[i] = backtest.Job{Strategy: strat, Options: opts}
		}

		t, err := e.store.Load(cmd.Context(), args[0])
		if err != nil {
			return fail(cmd, format, err)
		}
		for i := range jobs {
			jobs[i].Table = t
		}
		results, err := e.engine.RunMany(cmd.Context(), jobs)
		if err != nil {
			return fail(cmd, format, err)
		}

		if path, _ := cmd.Flags().GetString("report"); path != "" {
			for i, res := range results {
				file := reportPath(path, i, len(results))
				if err := writeReport(file, res, jobs[i].Strategy); err != nil {
					return err
				}
				log.WithField("file", file).Info("Wrote backtest report")
			}
		}

		if format != formatText {
			if len(results) == 1 {
				return render(cmd.OutOrStdout(), format, results[0])
			}
			return render(cmd.OutOrStdout(), format, results)
		}
		out := cmd.OutOrStdout()
		for i, res := range results {
			if len(results) > 1 {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "── Strategy %d: %s ──\n", i+1, jobs[i].Strategy.Entry)
			}
			fmt.Fprintln(out, res.Summary)
		}
		return nil
	},
}

func init() {
	backtestCmd.Flags().StringP("file", "f", "", `read the strategy from a file ("-" for stdin)`)
	backtestCmd.Flags().String("session", "", "restrict bars to a trading session (e.g. RTH)")
	backtestCmd.Flags().String("period", "", "restrict bars to a date range (e.g. 2023, 2023-01:2023-06)")
	backtestCmd.Flags().String("timeframe", "", "bar timeframe (default from config)")
	backtestCmd.Flags().String("report", "", "also write an HTML report to this file")
}

// reportPath numbers the report files when several strategies run:
// out.html becomes out-1.html, out-2.html, ...
func reportPath(path string, i, n int) string {
	if n == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i+1, ext)
}

func writeReport(path string, res *models.BacktestResult, strat backtest.Strategy) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	cfg := report.DefaultConfig()
	cfg.Version = version
	if err := report.Backtest(f, res, strat, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// splitStrategies returns one document per strategy: the elements of a
// JSON array, or raw itself.
func splitStrategies(raw []byte) ([][]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("strategy is required")
	}
	if raw[0] != '[' {
		return [][]byte{raw}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("invalid strategy list: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("strategy list is empty")
	}
	docs := make([][]byte, len(list))
	for i, doc := range list {
		docs[i] = doc
	}
	return docs, nil
}

func runOptions(cmd *cobra.Command, e *engines, symbol string) backtest.RunOptions {
	session, _ := cmd.Flags().GetString("session")
	period, _ := cmd.Flags().GetString("period")
	timeframe, _ := cmd.Flags().GetString("timeframe")

	sessions, _ := e.store.Registry().Sessions(symbol)
	return backtest.RunOptions{
		Symbol:    market.NormalizeSymbol(symbol),
		Sessions:  sessions,
		Session:   session,
		Period:    period,
		Timeframe: models.Timeframe(timeframe),
	}
}
