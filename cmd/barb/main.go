// Barb runs Barb Script queries and strategy backtests over OHLCV bars.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/internal/config"
	"github.com/seenimoa/barb/internal/datasource"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/infra"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global state, set up by the root command.
var (
	cfg *config.Config
	log *logrus.Logger
)

// errFailed is returned after a command has already reported its failure
// on stdout; main only sets the exit code.
var errFailed = errors.New("failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "barb",
	Short: "Barb Script: JSON queries and backtests over OHLCV bars",
	Long: `Barb runs Barb Script queries over OHLCV bar data.

A query is a JSON object whose fields run in a fixed order:
session, period, from, map, where, group_by, select, sort, limit.
Expressions use a small pandas-like language with 100+ technical
analysis functions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		log = infra.NewLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: json, yaml or text")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(instrumentsCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "barb %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// ════════════════════════════════════════════════════════════════════
// Shared setup
// ════════════════════════════════════════════════════════════════════

// engines bundles what the data commands need.
type engines struct {
	store  *datasource.Store
	reg    *functions.Registry
	exec   *query.Executor
	engine *backtest.Engine
}

// openEngines builds the store and the query and backtest engines from the
// loaded configuration.
func openEngines() (*engines, error) {
	instruments, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	src, err := datasource.New(cfg.Data)
	if err != nil {
		return nil, err
	}
	reg := functions.Builtin(functions.WithSessionGap(time.Duration(cfg.Query.SessionGapMinutes) * time.Minute))
	return &engines{
		store: datasource.NewStore(src, instruments, cfg.Data.CacheDuration(), log),
		reg:   reg,
		exec: query.NewExecutor(reg,
			query.WithLogger(log),
			query.WithPrecision(cfg.Query.Precision),
			query.WithDefaultTimeframe(models.Timeframe(cfg.Query.DefaultTimeframe)),
			query.WithMaxSourceRows(cfg.Query.MaxSourceRows),
		),
		engine: backtest.NewEngine(backtest.Config{
			Timeframe:   models.Timeframe(cfg.Backtest.Timeframe),
			ContextBars: cfg.Backtest.ContextBars,
			Workers:     cfg.Backtest.Workers,
		}, reg, log),
	}, nil
}

func (e *engines) Close() error { return e.store.Close() }

// readInput returns the JSON document for a command: the --file flag
// ("-" for stdin), else the positional argument at idx, else stdin.
func readInput(cmd *cobra.Command, args []string, idx int) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		return os.ReadFile(file)
	case len(args) > idx:
		return []byte(args[idx]), nil
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}

// outputFormat returns the --output flag, or def when unset.
func outputFormat(cmd *cobra.Command, def string) (string, error) {
	f, _ := cmd.Flags().GetString("output")
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" {
		return def, nil
	}
	switch f {
	case formatJSON, formatYAML, formatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q: want json, yaml or text", f)
}

// fail reports a query or backtest error as a structured document and
// returns errFailed.
func fail(cmd *cobra.Command, format string, err error) error {
	qe := query.AsError(err)
	if errors.Is(err, datasource.ErrNotFound) {
		qe = &query.Error{Type: "NotFound", Step: "load", Message: err.Error()}
	}
	if format == formatText {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", qe.Type, qe.Message)
		for _, f := range qe.Findings {
			fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s\n", f.Step, f.Message)
		}
		if qe.Hint != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "  hint: %s\n", qe.Hint)
		}
		return errFailed
	}
	if rerr := render(cmd.OutOrStdout(), format, qe); rerr != nil {
		return rerr
	}
	return errFailed
}
