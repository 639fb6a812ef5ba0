package backtest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// daily builds one bar per day from {open, high, low, close} rows.
func daily(rows ...[4]float64) *table.Table {
	bars := make([]models.OHLCV, len(rows))
	for i, r := range rows {
		bars[i] = models.OHLCV{
			Timestamp: day0.AddDate(0, 0, i),
			Open:      r[0], High: r[1], Low: r[2], Close: r[3],
			Volume: 1000,
		}
	}
	return table.FromBars(bars)
}

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), functions.Builtin(), nil)
}

func longOn(entry string) Strategy {
	return Strategy{Entry: entry, Direction: models.DirectionLong}
}

func runOne(t *testing.T, tbl *table.Table, s Strategy) *models.BacktestResult {
	t.Helper()
	res, err := newTestEngine().Run(tbl, s, RunOptions{Symbol: "ES"})
	require.NoError(t, err)
	return res
}

// green candle on the signal bar
var signal = [4]float64{100, 101, 99, 101}

// ════════════════════════════════════════════════════════════════════
// Simulation
// ════════════════════════════════════════════════════════════════════

func TestRun_EntersOnNextBarOpen(t *testing.T) {
	tbl := daily(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 103, 99, 102},
		[4]float64{102, 104, 101, 103},
		[4]float64{103, 105, 102, 104},
		[4]float64{104, 106, 103, 105},
	)
	res := runOne(t, tbl, longOn("close > open"))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, day0.AddDate(0, 0, 2), tr.EntryDate, "signal on bar 1 fills at bar 2")
	assert.InDelta(t, 102, tr.EntryPrice, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 4), tr.ExitDate)
	assert.InDelta(t, 105, tr.ExitPrice, 1e-9)
	assert.Equal(t, models.ExitEnd, tr.ExitReason)
	assert.Equal(t, 2, tr.BarsHeld)
	assert.InDelta(t, 3, tr.PnL, 1e-9)

	assert.Equal(t, "ES", res.Symbol)
	assert.Equal(t, models.TimeframeDaily, res.Timeframe)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []float64{3}, res.EquityCurve)
}

func TestRun_Exits(t *testing.T) {
	tests := []struct {
		name     string
		bars     [][4]float64
		strategy Strategy
		reason   models.ExitReason
		exit     float64
		pnl      float64
		held     int
	}{
		{
			name: "stop on the entry bar",
			bars: [][4]float64{signal, {101, 102, 99.5, 100}, {100, 100.5, 99, 99.2}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong, StopLoss: Points(1),
			},
			reason: models.ExitStop, exit: 100, pnl: -1, held: 0,
		},
		{
			name: "take profit in percent",
			bars: [][4]float64{signal, {100, 101, 99.5, 100.5}, {100.5, 102.5, 100, 102}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong, TakeProfit: Percent(2),
			},
			reason: models.ExitTakeProfit, exit: 102, pnl: 2, held: 1,
		},
		{
			name: "stop wins over take profit on the same bar",
			bars: [][4]float64{signal, {100, 103, 98, 99}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong,
				StopLoss: Points(1), TakeProfit: Points(2),
			},
			reason: models.ExitStop, exit: 99, pnl: -1, held: 0,
		},
		{
			name: "timeout after exit_bars",
			bars: [][4]float64{
				signal, {101, 102, 100, 100.5}, {100.5, 101, 100, 100.8},
				{100.8, 101, 100, 100.2}, {100.2, 100.5, 100, 100.1},
			},
			strategy: Strategy{Entry: "close > open", Direction: models.DirectionLong, ExitBars: 2},
			reason:   models.ExitTimeout, exit: 100.2, pnl: -0.8, held: 2,
		},
		{
			name: "fixed target from the signal bar",
			bars: [][4]float64{{100, 105, 99, 101}, {101, 104, 100, 100.5}, {100.5, 106, 100, 105.5}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong, ExitTarget: "high",
			},
			reason: models.ExitTarget, exit: 105, pnl: 4, held: 1,
		},
		{
			name: "trailing stop follows the high",
			bars: [][4]float64{signal, {101, 104, 102.5, 103.5}, {103.5, 105, 102.8, 103}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong, TrailingStop: Points(2),
			},
			reason: models.ExitTrailingStop, exit: 103, pnl: 2, held: 1,
		},
		{
			name: "breakeven after one bar in profit",
			bars: [][4]float64{signal, {101, 102, 100, 101.5}, {101.5, 102, 100.8, 101.2}},
			strategy: Strategy{
				Entry: "close > open", Direction: models.DirectionLong,
				StopLoss: Points(3), BreakevenBars: 1,
			},
			reason: models.ExitBreakeven, exit: 101, pnl: 0, held: 1,
		},
		{
			name: "short with slippage and commission",
			bars: [][4]float64{{101, 101.5, 99, 100}, {100, 100.5, 98, 99}, {99, 99.5, 97, 98}},
			strategy: Strategy{
				Entry: "close < open", Direction: models.DirectionShort,
				ExitBars: 1, Slippage: 0.25, Commission: 0.5,
			},
			reason: models.ExitTimeout, exit: 98.25, pnl: 1, held: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runOne(t, daily(tt.bars...), tt.strategy)
			require.Len(t, res.Trades, 1)
			tr := res.Trades[0]
			assert.Equal(t, tt.reason, tr.ExitReason)
			assert.InDelta(t, tt.exit, tr.ExitPrice, 1e-9)
			assert.InDelta(t, tt.pnl, tr.PnL, 1e-9)
			assert.Equal(t, tt.held, tr.BarsHeld)
		})
	}
}

func TestRun_ResolvesExitsOnFinerBars(t *testing.T) {
	at := func(day, hour int) time.Time { return day0.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour) }
	bars := []models.OHLCV{
		{Timestamp: at(0, 10), Open: 100, High: 101, Low: 99.5, Close: 100.5, Volume: 10},
		{Timestamp: at(0, 11), Open: 100.5, High: 101.5, Low: 100, Close: 101, Volume: 10},
		// take profit trades first, the stop only later in the day
		{Timestamp: at(1, 10), Open: 101, High: 103.5, Low: 100.5, Close: 103, Volume: 10},
		{Timestamp: at(1, 11), Open: 103, High: 103, Low: 98, Close: 98.5, Volume: 10},
	}
	s := Strategy{
		Entry: "close > open", Direction: models.DirectionLong,
		StopLoss: Points(2), TakeProfit: Points(2),
	}

	res := runOne(t, table.FromBars(bars), s)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, models.ExitTakeProfit, res.Trades[0].ExitReason)
	assert.InDelta(t, 103, res.Trades[0].ExitPrice, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 1), res.Trades[0].EntryDate)
}

func TestRun_SessionAndPeriod(t *testing.T) {
	sessions, ok := market.MustDefault().Sessions("ES")
	require.True(t, ok)

	at := func(day, hour, minute int) time.Time {
		return day0.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}
	var bars []models.OHLCV
	for d := 0; d < 3; d++ {
		// the evening bar is outside RTH and would close every day red
		bars = append(bars,
			models.OHLCV{Timestamp: at(d, 10, 0), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1},
			models.OHLCV{Timestamp: at(d, 15, 0), Open: 101, High: 103, Low: 100, Close: 102, Volume: 1},
			models.OHLCV{Timestamp: at(d, 20, 0), Open: 90, High: 200, Low: 50, Close: 60, Volume: 1},
		)
	}

	res, err := newTestEngine().Run(table.FromBars(bars), longOn("close > open"), RunOptions{
		Symbol: "ES", Sessions: sessions, Session: "rth", Period: "2024-01",
	})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 100, res.Trades[0].EntryPrice, 1e-9)
	assert.Equal(t, models.ExitEnd, res.Trades[0].ExitReason)
}

func TestRun_NoTrades(t *testing.T) {
	tests := []struct {
		name string
		tbl  *table.Table
	}{
		{"empty table", daily()},
		{"single bar", daily(signal)},
		{"never triggers", daily(signal, signal, signal)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runOne(t, tt.tbl, longOn("close > 1000"))
			assert.Empty(t, res.Trades)
			assert.NotNil(t, res.Trades)
			assert.NotNil(t, res.EquityCurve)
			assert.Zero(t, res.Metrics.TotalTrades)
			assert.Contains(t, res.Summary, "0 trades")
		})
	}
}

func TestRun_Errors(t *testing.T) {
	tbl := daily(signal, signal, signal)
	tests := []struct {
		name     string
		strategy Strategy
		opts     RunOptions
		typ      string
		step     string
	}{
		{"bad direction", Strategy{Entry: "close > open", Direction: "sideways"}, RunOptions{}, query.TypeValidation, "backtest"},
		{"missing entry", Strategy{Direction: models.DirectionLong}, RunOptions{}, query.TypeValidation, "backtest"},
		{"weekly timeframe", longOn("close > open"), RunOptions{Timeframe: models.TimeframeWeekly}, query.TypeValidation, "backtest"},
		{"unknown function", longOn("foo(close) > 1"), RunOptions{}, query.TypeValidation, "entry"},
		{"entry not boolean", longOn("close + 1"), RunOptions{}, query.TypeType, "entry"},
		{"bad period", longOn("close > open"), RunOptions{Period: "2024-13"}, query.TypeValidation, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().Run(tbl, tt.strategy, tt.opts)
			require.Error(t, err)
			qe := query.AsError(err)
			assert.Equal(t, tt.typ, qe.Type)
			assert.Equal(t, tt.step, qe.Step)
		})
	}
}

func TestRunMany(t *testing.T) {
	up := daily(signal, [4]float64{101, 103, 100, 102}, [4]float64{102, 104, 101, 103})
	jobs := []Job{
		{Table: up, Strategy: longOn("close > open"), Options: RunOptions{Symbol: "ES"}},
		{Table: up, Strategy: longOn("close > 1000"), Options: RunOptions{Symbol: "NQ"}},
	}

	results, err := newTestEngine().RunMany(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ES", results[0].Symbol)
	assert.Equal(t, 1, results[0].Metrics.TotalTrades)
	assert.Equal(t, "NQ", results[1].Symbol)
	assert.Zero(t, results[1].Metrics.TotalTrades)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)

	jobs = append(jobs, Job{Table: up, Strategy: Strategy{Entry: "close > open"}, Options: RunOptions{Symbol: "YM"}})
	_, err = newTestEngine().RunMany(context.Background(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YM")
}

// ════════════════════════════════════════════════════════════════════
// Metrics
// ════════════════════════════════════════════════════════════════════

func tradesWith(pnls ...float64) []models.Trade {
	out := make([]models.Trade, len(pnls))
	for i, p := range pnls {
		reason := models.ExitTakeProfit
		if p <= 0 {
			reason = models.ExitStop
		}
		out[i] = models.Trade{
			EntryDate:  day0.AddDate(0, i*4, 0),
			PnL:        p,
			BarsHeld:   1,
			ExitReason: reason,
			Direction:  models.DirectionLong,
		}
	}
	return out
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(tradesWith(2, -1, 3, -2, 0))

	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 3, m.LosingTrades, "zero P&L counts as a loss")
	assert.InDelta(t, 40, m.WinRate, 1e-9)
	assert.InDelta(t, 1.6667, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 2.5, m.AvgWin, 1e-9)
	assert.InDelta(t, -1, m.AvgLoss, 1e-9)
	assert.InDelta(t, 2, m.TotalPnL, 1e-9)
	assert.InDelta(t, 2, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 1, m.RecoveryFactor, 1e-9)
	assert.InDelta(t, 0.4, m.Expectancy, 1e-9)
	assert.InDelta(t, 1, m.AvgBarsHeld, 1e-9)
	assert.Equal(t, 1, m.MaxConsecutiveWins)
	assert.Equal(t, 2, m.MaxConsecutiveLosses)

	assert.Equal(t, []float64{2, 1, 4, 2, 2}, EquityCurve(tradesWith(2, -1, 3, -2, 0)))
}

func TestComputeMetrics_NoLosses(t *testing.T) {
	m := ComputeMetrics(tradesWith(1, 2))
	assert.True(t, m.ProfitFactor > 1e300)
	assert.True(t, m.RecoveryFactor > 1e300)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor":"inf"`)
	assert.Contains(t, string(data), `"recovery_factor":"inf"`)
}

func TestSummary(t *testing.T) {
	r := &models.BacktestResult{Trades: tradesWith(2, -1, 3, -2, 0)}
	finish(r)

	lines := strings.Split(r.Summary, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Backtest: 5 trades | Win Rate 40.0% | PF 1.67 | Total +2.0 pts | Max DD 2.0 pts", lines[0])
	assert.Contains(t, lines[1], "Best: +3.0 | Worst: -2.0")
	assert.Contains(t, lines[1], "Consec W/L: 1/2")
	assert.Equal(t, "By year: 2024 +4.0 (3) | 2025 -2.0 (2)", lines[2])
	assert.Equal(t, "Exits: stop 3 (W:0 L:3, -3.0) | take_profit 2 (W:2 L:0, +5.0)", lines[3])
	assert.Equal(t, "Top 3 trades: +5.0 pts (250.0% of total PnL)", lines[4])

	require.Len(t, r.ByExit, 2)
	assert.Equal(t, "stop", r.ByExit[0].Key)
}

// ════════════════════════════════════════════════════════════════════
// Strategy decoding
// ════════════════════════════════════════════════════════════════════

func TestDecodeStrategy(t *testing.T) {
	s, err := DecodeStrategy([]byte(`{
		"entry": "rsi(close, 14) < 30", "direction": "long",
		"stop_loss": "2%", "take_profit": 30, "exit_bars": 5
	}`))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLong, s.Direction)
	require.NotNil(t, s.StopLoss)
	assert.True(t, s.StopLoss.Percent)
	assert.InDelta(t, 100, s.StopLoss.Distance(5000), 1e-9)
	require.NotNil(t, s.TakeProfit)
	assert.InDelta(t, 30, s.TakeProfit.Distance(5000), 1e-9)
	assert.Equal(t, 5, s.ExitBars)
	require.NoError(t, s.Validate(functions.Builtin()))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stop_loss":"2%"`)
	assert.Contains(t, string(data), `"take_profit":30`)
}

func TestDecodeStrategy_Errors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"not an object", `[1]`, "must be a JSON object"},
		{"unknown field", `{"entry": "x", "direction": "long", "stop": 2}`, "Unknown strategy fields: stop"},
		{"bad level", `{"entry": "x", "direction": "long", "stop_loss": "two%"}`, "invalid level"},
		{"negative level", `{"entry": "x", "direction": "long", "stop_loss": -1}`, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStrategy([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
