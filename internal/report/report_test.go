package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func sampleResult() *models.BacktestResult {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{EntryDate: day, EntryPrice: 100, ExitDate: day.AddDate(0, 0, 2), ExitPrice: 104, Direction: models.DirectionLong, PnL: 4, ExitReason: models.ExitTakeProfit, BarsHeld: 2},
		{EntryDate: day.AddDate(0, 0, 3), EntryPrice: 104, ExitDate: day.AddDate(0, 0, 4), ExitPrice: 101.5, Direction: models.DirectionLong, PnL: -2.5, ExitReason: models.ExitStop, BarsHeld: 1},
		{EntryDate: day.AddDate(1, 0, 0), EntryPrice: 110, ExitDate: day.AddDate(1, 0, 5), ExitPrice: 113, Direction: models.DirectionLong, PnL: 3, ExitReason: models.ExitTimeout, BarsHeld: 5},
	}
	return &models.BacktestResult{
		RunID:       "01HTESTRUN",
		Symbol:      "ES",
		Timeframe:   models.TimeframeDaily,
		Trades:      trades,
		Metrics:     backtest.ComputeMetrics(trades),
		EquityCurve: backtest.EquityCurve(trades),
		ByYear: []models.Breakdown{
			{Key: "2024", Trades: 2, Wins: 1, Losses: 1, PnL: 1.5},
			{Key: "2025", Trades: 1, Wins: 1, PnL: 3},
		},
		ByExit: []models.Breakdown{
			{Key: "stop", Trades: 1, Losses: 1, PnL: -2.5},
			{Key: "take_profit", Trades: 1, Wins: 1, PnL: 4},
			{Key: "timeout", Trades: 1, Wins: 1, PnL: 3},
		},
		Summary: "Backtest: 3 trades | Win Rate 66.7% <summary>",
	}
}

func sampleStrategy() backtest.Strategy {
	return backtest.Strategy{
		Entry:      "close < open && rsi(close, 14) < 30",
		Direction:  models.DirectionLong,
		StopLoss:   backtest.Points(2.5),
		TakeProfit: backtest.Percent(4),
		ExitBars:   5,
	}
}

func fixedConfig() Config {
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }
	return cfg
}

// ════════════════════════════════════════════════════════════════════
// HTML Report
// ════════════════════════════════════════════════════════════════════

func TestBacktest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Backtest(&buf, sampleResult(), sampleStrategy(), fixedConfig()))
	html := buf.String()

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>ES Backtest</title>")
	assert.Contains(t, html, "generated 2025-06-01 12:30 UTC")
	assert.Contains(t, html, "Generated by Barb 1.2.3")

	// Rules, with user text escaped.
	assert.Contains(t, html, "close &lt; open &amp;&amp; rsi(close, 14) &lt; 30")
	assert.Contains(t, html, "<code>2.5</code>")
	assert.Contains(t, html, "<code>4%</code>")
	assert.Contains(t, html, "<code>5 bars</code>")
	assert.NotContains(t, html, "Trailing stop")
	assert.Contains(t, html, "Win Rate 66.7% &lt;summary&gt;")

	// Three charts, unescaped.
	assert.Equal(t, 3, strings.Count(html, "<svg "))
	assert.Contains(t, html, "P&amp;L by year")

	// Trade log.
	assert.Contains(t, html, "<td>2024-03-04</td>")
	assert.Contains(t, html, `<td class="num negative">-2.50</td>`)
	assert.Contains(t, html, "<td>take_profit</td><td class=\"num\">1</td>")
	assert.NotContains(t, html, "earlier trades omitted")
}

func TestBacktest_TruncatesTrades(t *testing.T) {
	cfg := fixedConfig()
	cfg.MaxTrades = 2

	var buf bytes.Buffer
	require.NoError(t, Backtest(&buf, sampleResult(), sampleStrategy(), cfg))
	html := buf.String()

	assert.Contains(t, html, "1 earlier trades omitted.")
	assert.NotContains(t, html, "<td>1</td><td>2024-03-04</td>")
	assert.Contains(t, html, "<td>2</td><td>2024-03-07</td>")
	assert.Contains(t, html, "<td>3</td><td>2025-03-04</td>")
}

func TestBacktest_NoTrades(t *testing.T) {
	res := &models.BacktestResult{
		Symbol:    "NQ",
		Timeframe: models.Timeframe("5m"),
		Summary:   "Backtest: 0 trades. Entry condition never triggered in this period.",
	}
	var buf bytes.Buffer
	require.NoError(t, Backtest(&buf, res, sampleStrategy(), fixedConfig()))
	html := buf.String()

	assert.Contains(t, html, "Entry condition never triggered in this period.</p>")
	assert.Equal(t, 1, strings.Count(html, "<svg "))
	assert.Contains(t, html, "No trades")
}

func TestBacktest_NilResult(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Backtest(&buf, nil, sampleStrategy(), Config{}))
}

func TestBacktest_IntradayTimestamps(t *testing.T) {
	at := time.Date(2024, 1, 2, 9, 35, 0, 0, time.UTC)
	trades := []models.Trade{{EntryDate: at, EntryPrice: 10, ExitDate: at.Add(10 * time.Minute), ExitPrice: 11, Direction: models.DirectionLong, PnL: 1, ExitReason: models.ExitEnd, BarsHeld: 2}}
	res := &models.BacktestResult{
		Symbol:      "ES",
		Timeframe:   models.Timeframe("5m"),
		Trades:      trades,
		Metrics:     backtest.ComputeMetrics(trades),
		EquityCurve: backtest.EquityCurve(trades),
	}
	var buf bytes.Buffer
	require.NoError(t, Backtest(&buf, res, sampleStrategy(), fixedConfig()))
	assert.Contains(t, buf.String(), "<td>2024-01-02 09:35</td>")
	assert.Contains(t, buf.String(), "<td>2024-01-02 09:45</td>")
}

// ════════════════════════════════════════════════════════════════════
// Charts
// ════════════════════════════════════════════════════════════════════

func TestLineChart(t *testing.T) {
	svg := LineChart([]Series{
		{Name: "A <1>", Values: []float64{1, 2, math.NaN(), 4}, Color: "#000"},
		{Name: "B", Values: []float64{-1}, Color: "#111"},
	}, []string{"a", "b", "c", "d"}, ChartConfig{Title: "Mixed"})

	assert.True(t, strings.HasPrefix(svg, "<svg "))
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
	assert.Contains(t, svg, ">Mixed</text>")
	assert.Contains(t, svg, "A &lt;1&gt;")
	assert.Equal(t, 1, strings.Count(svg, "<path "))
	assert.Equal(t, 1, strings.Count(svg, "<circle "))
	// Range spans zero.
	assert.Contains(t, svg, `stroke="#999"`)
}

func TestLineChart_Empty(t *testing.T) {
	assert.Contains(t, LineChart(nil, nil, ChartConfig{}), "No trades")
	assert.Contains(t, LineChart([]Series{{Values: []float64{math.NaN()}}}, nil, ChartConfig{}), "No trades")
}

func TestEquityChart(t *testing.T) {
	svg := EquityChart([]float64{4, 1.5, 4.5}, []string{"x", "y", "z"}, DefaultChartConfig())
	assert.Contains(t, svg, ">Equity (points)</text>")
	assert.Contains(t, svg, ">Equity</text>")
	assert.Contains(t, svg, ">Drawdown</text>")
	assert.Equal(t, 2, strings.Count(svg, "<path "))
}

func TestBarChart(t *testing.T) {
	svg := BarChart([]BarItem{{"win", 4}, {"loss", -2.5}, {"flat", 0}}, ChartConfig{Title: "By exit"})
	assert.Equal(t, 3, strings.Count(svg, "<rect x=\"")-1) // minus the background
	assert.Contains(t, svg, ">+4.0</text>")
	assert.Contains(t, svg, ">-2.5</text>")
	assert.Contains(t, svg, colorLoss)
	assert.Contains(t, svg, colorGain)

	assert.Contains(t, BarChart(nil, ChartConfig{}), "No trades")
}
