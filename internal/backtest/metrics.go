package backtest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/barb/pkg/models"
)

// pricePlaces is the rounding applied to prices, P&L and the equity curve.
const pricePlaces = 4

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// finish fills everything derived from the trade log.
func finish(r *models.BacktestResult) {
	r.Metrics = ComputeMetrics(r.Trades)
	r.EquityCurve = EquityCurve(r.Trades)
	r.ByYear = breakdown(r.Trades, func(t models.Trade) string { return strconv.Itoa(t.EntryDate.Year()) })
	r.ByExit = breakdown(r.Trades, func(t models.Trade) string { return string(t.ExitReason) })
	r.Summary = Summary(r)
}

// ════════════════════════════════════════════════════════════════════
// Performance Metrics
// ════════════════════════════════════════════════════════════════════

// ComputeMetrics summarises a trade log. A trade with zero P&L counts as a
// loss. Profit and recovery factors are +Inf when there is nothing to
// divide by.
func ComputeMetrics(trades []models.Trade) models.BacktestMetrics {
	var m models.BacktestMetrics
	m.TotalTrades = len(trades)
	if m.TotalTrades == 0 {
		return m
	}

	computeTradeStats(&m, trades)
	computeDrawdown(&m, trades)
	computeStreaks(&m, trades)

	switch {
	case m.MaxDrawdown > 0:
		m.RecoveryFactor = roundTo(m.TotalPnL/m.MaxDrawdown, pricePlaces)
	case m.TotalPnL > 0:
		m.RecoveryFactor = math.Inf(1)
	}
	return m
}

// ────────────────────────────────────────────────────────────────────
// Trade statistics
// ────────────────────────────────────────────────────────────────────

func computeTradeStats(m *models.BacktestMetrics, trades []models.Trade) {
	var grossProfit, grossLoss, total float64
	bars := 0
	for _, t := range trades {
		total += t.PnL
		bars += t.BarsHeld
		if t.Won() {
			m.WinningTrades++
			grossProfit += t.PnL
		} else {
			m.LosingTrades++
			grossLoss += math.Abs(t.PnL)
		}
	}

	n := float64(m.TotalTrades)
	m.TotalPnL = roundTo(total, pricePlaces)
	m.WinRate = roundTo(float64(m.WinningTrades)/n*100, 2)
	m.Expectancy = roundTo(total/n, pricePlaces)
	m.AvgBarsHeld = roundTo(float64(bars)/n, 2)

	if m.WinningTrades > 0 {
		m.AvgWin = roundTo(grossProfit/float64(m.WinningTrades), pricePlaces)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = roundTo(-grossLoss/float64(m.LosingTrades), pricePlaces)
	}

	if grossLoss > 0 {
		m.ProfitFactor = roundTo(grossProfit/grossLoss, pricePlaces)
	} else {
		m.ProfitFactor = math.Inf(1)
	}
}

// ────────────────────────────────────────────────────────────────────
// Max Drawdown: peak to trough of cumulative P&L, starting from zero
// ────────────────────────────────────────────────────────────────────

func computeDrawdown(m *models.BacktestMetrics, trades []models.Trade) {
	var equity, peak, maxDD float64
	for _, t := range trades {
		equity += t.PnL
		peak = math.Max(peak, equity)
		maxDD = math.Max(maxDD, peak-equity)
	}
	m.MaxDrawdown = roundTo(maxDD, pricePlaces)
}

func computeStreaks(m *models.BacktestMetrics, trades []models.Trade) {
	wins, losses := 0, 0
	for _, t := range trades {
		if t.Won() {
			wins, losses = wins+1, 0
		} else {
			wins, losses = 0, losses+1
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, wins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, losses)
	}
}

// EquityCurve returns cumulative P&L after each trade.
func EquityCurve(trades []models.Trade) []float64 {
	curve := make([]float64, len(trades))
	var equity float64
	for i, t := range trades {
		equity += t.PnL
		curve[i] = roundTo(equity, pricePlaces)
	}
	return curve
}

// breakdown groups trades by key, sorted by key.
func breakdown(trades []models.Trade, key func(models.Trade) string) []models.Breakdown {
	byKey := map[string]*models.Breakdown{}
	for _, t := range trades {
		k := key(t)
		b, ok := byKey[k]
		if !ok {
			b = &models.Breakdown{Key: k}
			byKey[k] = b
		}
		b.Trades++
		b.PnL += t.PnL
		if t.Won() {
			b.Wins++
		} else {
			b.Losses++
		}
	}
	out := make([]models.Breakdown, 0, len(byKey))
	for _, b := range byKey {
		b.PnL = roundTo(b.PnL, pricePlaces)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ════════════════════════════════════════════════════════════════════
// Text summary
// ════════════════════════════════════════════════════════════════════

// Summary renders five lines: headline metrics, trade-level stats, P&L by
// year, P&L by exit reason and the share of P&L from the best three trades.
func Summary(r *models.BacktestResult) string {
	m := r.Metrics
	if m.TotalTrades == 0 {
		return "Backtest: 0 trades. Entry condition never triggered in this period."
	}

	pnls := make([]float64, len(r.Trades))
	for i, t := range r.Trades {
		pnls[i] = t.PnL
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(pnls)))

	lines := make([]string, 0, 5)
	lines = append(lines, fmt.Sprintf(
		"Backtest: %d trades | Win Rate %.1f%% | PF %s | Total %+.1f pts | Max DD %.1f pts",
		m.TotalTrades, m.WinRate, ratio(m.ProfitFactor), m.TotalPnL, m.MaxDrawdown))
	lines = append(lines, fmt.Sprintf(
		"Avg win: %+.1f | Avg loss: %.1f | Best: %+.1f | Worst: %+.1f | Avg bars: %.1f | Recovery: %s | Consec W/L: %d/%d",
		m.AvgWin, m.AvgLoss, pnls[0], pnls[len(pnls)-1], m.AvgBarsHeld, ratio(m.RecoveryFactor),
		m.MaxConsecutiveWins, m.MaxConsecutiveLosses))

	years := make([]string, len(r.ByYear))
	for i, b := range r.ByYear {
		years[i] = fmt.Sprintf("%s %+.1f (%d)", b.Key, b.PnL, b.Trades)
	}
	lines = append(lines, "By year: "+strings.Join(years, " | "))

	exits := make([]string, len(r.ByExit))
	for i, b := range r.ByExit {
		exits[i] = fmt.Sprintf("%s %d (W:%d L:%d, %+.1f)", b.Key, b.Trades, b.Wins, b.Losses, b.PnL)
	}
	lines = append(lines, "Exits: "+strings.Join(exits, " | "))

	var top3 float64
	for _, p := range pnls[:min(3, len(pnls))] {
		top3 += p
	}
	if m.TotalPnL != 0 {
		lines = append(lines, fmt.Sprintf("Top 3 trades: %+.1f pts (%.1f%% of total PnL)", top3, math.Abs(top3/m.TotalPnL)*100))
	} else {
		lines = append(lines, fmt.Sprintf("Top 3 trades: %+.1f pts", top3))
	}
	return strings.Join(lines, "\n")
}

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}
