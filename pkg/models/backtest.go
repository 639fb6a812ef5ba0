package models

import (
	"encoding/json"
	"math"
	"time"
)

// Direction is the side a backtest strategy trades.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ExitReason records why a backtest position was closed.
type ExitReason string

const (
	ExitStop         ExitReason = "stop"
	ExitBreakeven    ExitReason = "breakeven"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTarget       ExitReason = "target"
	ExitTimeout      ExitReason = "timeout"
	ExitEnd          ExitReason = "end"
)

// Trade is one completed round trip. P&L is in price points after
// slippage and commission.
type Trade struct {
	EntryDate  time.Time  `json:"entry_date"  yaml:"entry_date"`
	EntryPrice float64    `json:"entry_price" yaml:"entry_price"`
	ExitDate   time.Time  `json:"exit_date"   yaml:"exit_date"`
	ExitPrice  float64    `json:"exit_price"  yaml:"exit_price"`
	Direction  Direction  `json:"direction"   yaml:"direction"`
	PnL        float64    `json:"pnl"         yaml:"pnl"`
	ExitReason ExitReason `json:"exit_reason" yaml:"exit_reason"`
	BarsHeld   int        `json:"bars_held"   yaml:"bars_held"`
}

// Won reports whether the trade closed with a strictly positive P&L.
func (t Trade) Won() bool { return t.PnL > 0 }

// BacktestMetrics summarises a list of trades.
type BacktestMetrics struct {
	TotalTrades          int     `json:"total_trades"           yaml:"total_trades"`
	WinningTrades        int     `json:"winning_trades"         yaml:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"          yaml:"losing_trades"`
	WinRate              float64 `json:"win_rate"               yaml:"win_rate"`
	ProfitFactor         float64 `json:"profit_factor"          yaml:"profit_factor"`
	AvgWin               float64 `json:"avg_win"                yaml:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"               yaml:"avg_loss"`
	MaxDrawdown          float64 `json:"max_drawdown"           yaml:"max_drawdown"`
	TotalPnL             float64 `json:"total_pnl"              yaml:"total_pnl"`
	Expectancy           float64 `json:"expectancy"             yaml:"expectancy"`
	AvgBarsHeld          float64 `json:"avg_bars_held"          yaml:"avg_bars_held"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"   yaml:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	RecoveryFactor       float64 `json:"recovery_factor"        yaml:"recovery_factor"`
}

// MarshalJSON encodes infinite ratios as the string "inf" since JSON has no
// representation for them.
func (m BacktestMetrics) MarshalJSON() ([]byte, error) {
	type plain BacktestMetrics
	return json.Marshal(struct {
		plain
		ProfitFactor   any `json:"profit_factor"`
		RecoveryFactor any `json:"recovery_factor"`
	}{
		plain:          plain(m),
		ProfitFactor:   jsonRatio(m.ProfitFactor),
		RecoveryFactor: jsonRatio(m.RecoveryFactor),
	})
}

func jsonRatio(v float64) any {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return nil
	}
	return v
}

// Breakdown aggregates trades sharing a key (year or exit reason).
type Breakdown struct {
	Key    string  `json:"key"    yaml:"key"`
	Trades int     `json:"trades" yaml:"trades"`
	Wins   int     `json:"wins"   yaml:"wins"`
	Losses int     `json:"losses" yaml:"losses"`
	PnL    float64 `json:"pnl"    yaml:"pnl"`
}

// BacktestResult is the outcome of one backtest invocation.
type BacktestResult struct {
	RunID       string          `json:"run_id"       yaml:"run_id"`
	Symbol      string          `json:"symbol"       yaml:"symbol"`
	Timeframe   Timeframe       `json:"timeframe"    yaml:"timeframe"`
	Trades      []Trade         `json:"trades"       yaml:"trades"`
	Metrics     BacktestMetrics `json:"metrics"      yaml:"metrics"`
	EquityCurve []float64       `json:"equity_curve" yaml:"equity_curve"`
	ByYear      []Breakdown     `json:"by_year"      yaml:"by_year"`
	ByExit      []Breakdown     `json:"by_exit"      yaml:"by_exit"`
	Summary     string          `json:"summary"      yaml:"summary"`
}
