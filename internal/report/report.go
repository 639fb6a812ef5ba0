package report

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/pkg/models"
)

// Config controls report generation.
type Config struct {
	Title     string           // default: "<SYMBOL> Backtest"
	MaxTrades int              // trade rows shown, the most recent ones (default: 500)
	Version   string           // shown in the footer
	Chart     ChartConfig      // zero value selects DefaultChartConfig
	Now       func() time.Time // clock for the generated-at stamp
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		MaxTrades: 500,
		Version:   "dev",
		Chart:     DefaultChartConfig(),
		Now:       time.Now,
	}
}

// ════════════════════════════════════════════════════════════════════
// Template model
// ════════════════════════════════════════════════════════════════════

type data struct {
	Title       string
	Symbol      string
	Timeframe   models.Timeframe
	RunID       string
	GeneratedAt string
	Version     string
	Rules       []rule
	Stats       []stat
	Summary     string
	EquityChart template.HTML
	YearChart   template.HTML
	ExitChart   template.HTML
	ByYear      []models.Breakdown
	ByExit      []models.Breakdown
	Trades      []tradeRow
	Omitted     int
}

type rule struct{ Name, Value string }

type stat struct{ Label, Value, Class string }

type tradeRow struct {
	N                     int
	Entry, Exit           string
	EntryPrice, ExitPrice string
	Direction             models.Direction
	Reason                models.ExitReason
	Bars                  int
	PnL, Class            string
}

var page = template.Must(template.New("backtest").Funcs(template.FuncMap{
	"points": func(v float64) string { return fmt.Sprintf("%+.2f", v) },
}).Parse(backtestTemplate))

// ════════════════════════════════════════════════════════════════════
// Rendering
// ════════════════════════════════════════════════════════════════════

// Backtest writes an HTML report of res, the result of running strat.
func Backtest(w io.Writer, res *models.BacktestResult, strat backtest.Strategy, cfg Config) error {
	if res == nil {
		return errors.New("backtest result is nil")
	}
	def := DefaultConfig()
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = def.MaxTrades
	}
	if cfg.Chart.Width == 0 {
		cfg.Chart = def.Chart
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}

	if err := page.Execute(w, buildData(res, strat, cfg)); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	return nil
}

func buildData(res *models.BacktestResult, strat backtest.Strategy, cfg Config) data {
	d := data{
		Title:       cfg.Title,
		Symbol:      res.Symbol,
		Timeframe:   res.Timeframe,
		RunID:       res.RunID,
		GeneratedAt: cfg.Now().UTC().Format("2006-01-02 15:04 MST"),
		Version:     cfg.Version,
		Rules:       strategyRules(strat),
		Stats:       headlineStats(res.Metrics),
		Summary:     res.Summary,
		ByYear:      res.ByYear,
		ByExit:      res.ByExit,
	}
	if d.Title == "" {
		d.Title = res.Symbol + " Backtest"
	}

	layout := "2006-01-02"
	if res.Timeframe.IsIntraday() {
		layout = "2006-01-02 15:04"
	}

	labels := make([]string, len(res.Trades))
	for i, t := range res.Trades {
		labels[i] = t.ExitDate.Format("2006-01-02")
	}
	chart := cfg.Chart
	d.EquityChart = template.HTML(EquityChart(res.EquityCurve, labels, chart))
	chart.Title = "P&L by year"
	d.YearChart = template.HTML(BarChart(breakdownBars(res.ByYear), chart))
	chart.Title = "P&L by exit reason"
	d.ExitChart = template.HTML(BarChart(breakdownBars(res.ByExit), chart))

	trades := res.Trades
	if len(trades) > cfg.MaxTrades {
		d.Omitted = len(trades) - cfg.MaxTrades
		trades = trades[d.Omitted:]
	}
	d.Trades = make([]tradeRow, len(trades))
	for i, t := range trades {
		d.Trades[i] = tradeRow{
			N:          d.Omitted + i + 1,
			Entry:      t.EntryDate.Format(layout),
			Exit:       t.ExitDate.Format(layout),
			EntryPrice: price(t.EntryPrice),
			ExitPrice:  price(t.ExitPrice),
			Direction:  t.Direction,
			Reason:     t.ExitReason,
			Bars:       t.BarsHeld,
			PnL:        fmt.Sprintf("%+.2f", t.PnL),
			Class:      signClass(t.PnL),
		}
	}
	return d
}

// strategyRules lists the strategy's rules that are set.
func strategyRules(s backtest.Strategy) []rule {
	rules := []rule{{"Entry", s.Entry}, {"Direction", string(s.Direction)}}
	add := func(name, value string) {
		if value != "" {
			rules = append(rules, rule{name, value})
		}
	}
	level := func(l *backtest.Level) string {
		if l == nil {
			return ""
		}
		return l.String()
	}
	count := func(n int) string {
		if n <= 0 {
			return ""
		}
		return strconv.Itoa(n) + " bars"
	}
	add("Exit target", s.ExitTarget)
	add("Stop loss", level(s.StopLoss))
	add("Take profit", level(s.TakeProfit))
	add("Trailing stop", level(s.TrailingStop))
	add("Exit after", count(s.ExitBars))
	add("Breakeven after", count(s.BreakevenBars))
	if s.Slippage > 0 {
		add("Slippage", price(s.Slippage)+" pts/side")
	}
	if s.Commission > 0 {
		add("Commission", price(s.Commission)+" pts/trade")
	}
	return rules
}

func headlineStats(m models.BacktestMetrics) []stat {
	return []stat{
		{"Trades", strconv.Itoa(m.TotalTrades), ""},
		{"Win rate", fmt.Sprintf("%.1f%%", m.WinRate), ""},
		{"Profit factor", ratio(m.ProfitFactor), ""},
		{"Total P&L", fmt.Sprintf("%+.2f", m.TotalPnL), signClass(m.TotalPnL)},
		{"Max drawdown", fmt.Sprintf("%.2f", m.MaxDrawdown), ""},
		{"Expectancy", fmt.Sprintf("%+.2f", m.Expectancy), signClass(m.Expectancy)},
		{"Avg win", fmt.Sprintf("%+.2f", m.AvgWin), ""},
		{"Avg loss", fmt.Sprintf("%.2f", m.AvgLoss), ""},
		{"Avg bars held", fmt.Sprintf("%.1f", m.AvgBarsHeld), ""},
		{"Recovery factor", ratio(m.RecoveryFactor), ""},
		{"Consec. W/L", fmt.Sprintf("%d/%d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses), ""},
	}
}

func breakdownBars(b []models.Breakdown) []BarItem {
	items := make([]BarItem, len(b))
	for i, x := range b {
		items[i] = BarItem{Label: fmt.Sprintf("%s (%d)", x.Key, x.Trades), Value: x.PnL}
	}
	return items
}

func price(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func signClass(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	}
	return ""
}
