package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/barb/api"
	"github.com/seenimoa/barb/internal/datasource"
	"github.com/seenimoa/barb/internal/market"
)

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.API.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}

		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		if preload, _ := cmd.Flags().GetBool("preload"); preload {
			if err := e.store.Preload(ctx, e.store.Registry().Symbols()); err != nil {
				return fmt.Errorf("preload: %w", err)
			}
		}

		api.Version = version
		log.WithFields(logrus.Fields{
			"version": version,
			"driver":  e.store.Source().Name(),
		}).Info("Starting Barb API server")
		return api.NewServer(cfg, e.store, log).ListenAndServe(ctx, cfg.API.Addr())
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides api.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides api.port)")
	serveCmd.Flags().Bool("preload", false, "load every registered instrument before serving")
}

// --- Import Command ---

var importCmd = &cobra.Command{
	Use:   "import SYMBOL FILE",
	Short: "Import bars from a CSV or Parquet file into the data store",
	Long: `Read bars from FILE and write them to the configured store,
replacing what it holds for SYMBOL. Timestamps without a zone are read
in the instrument's exchange timezone.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		symbol := market.NormalizeSymbol(args[0])
		bars, err := datasource.ReadFile(cmd.Context(), args[1], e.store.Registry().Location(symbol))
		if err != nil {
			return err
		}
		n, err := e.store.Import(cmd.Context(), symbol, bars)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bars for %s (%s to %s) into %s store\n",
			n, symbol,
			bars[0].Timestamp.Format("2006-01-02 15:04"),
			bars[len(bars)-1].Timestamp.Format("2006-01-02 15:04"),
			e.store.Source().Name())
		return nil
	},
}

// --- Instruments Command ---

// instrumentRow is one line of the instruments listing.
type instrumentRow struct {
	market.Instrument `yaml:",inline"`
	HasData           bool `json:"has_data" yaml:"has_data"`
}

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List registered instruments and whether data is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, formatText)
		if err != nil {
			return err
		}
		e, err := openEngines()
		if err != nil {
			return err
		}
		defer e.Close()

		stored, err := e.store.Source().Symbols(cmd.Context())
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
		have := make(map[string]bool, len(stored))
		for _, s := range stored {
			have[market.NormalizeSymbol(s)] = true
		}

		list := e.store.Registry().List()
		rows := make([]instrumentRow, len(list))
		for i, inst := range list {
			rows[i] = instrumentRow{Instrument: inst, HasData: have[inst.Symbol]}
		}
		if format != formatText {
			return render(cmd.OutOrStdout(), format, rows)
		}

		tw := newTable(cmd.OutOrStdout())
		writeRow(tw, "SYMBOL", "NAME", "EXCHANGE", "TIMEZONE", "TICK", "SESSIONS", "DATA")
		for _, r := range rows {
			data := ""
			if r.HasData {
				data = "yes"
			}
			writeRow(tw, r.Symbol, r.Name, r.Exchange, r.Timezone, r.TickSize, formatSessions(r.Sessions, r.DefaultSession), data)
		}
		return tw.Flush()
	},
}

// formatSessions renders sessions as "ETH 18:00-17:00, RTH* 09:30-16:15",
// starring the default.
func formatSessions(sessions map[string][]string, def string) string {
	parts := make([]string, 0, len(sessions))
	for _, name := range sortedKeys(sessions) {
		label := name
		if name == def {
			label += "*"
		}
		parts = append(parts, label+" "+strings.Join(sessions[name], "-"))
	}
	return strings.Join(parts, ", ")
}
