// Package backtest simulates expression-driven strategies bar by bar over
// OHLCV tables. Entries execute on the bar after the signal; exits are
// checked in a fixed order and resolved over the finer source bars when
// the input is finer than the backtest timeframe.
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/infra"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

const stepName = "backtest"

// Timeframes a backtest may run at. 1m gains nothing from exit resolution
// and weekly or coarser bars make exit_bars meaningless.
var Timeframes = []models.Timeframe{
	models.Timeframe5Min, models.Timeframe15Min, models.Timeframe30Min,
	models.Timeframe1Hour, models.Timeframe2Hour, models.Timeframe4Hour,
	models.TimeframeDaily,
}

// ════════════════════════════════════════════════════════════════════
// Engine Configuration
// ════════════════════════════════════════════════════════════════════

// Config holds the engine-wide parameters.
type Config struct {
	Timeframe   models.Timeframe // default bar timeframe (default: daily)
	ContextBars int              // history handed to exit_target (default: 200)
	Workers     int              // concurrent runs in RunMany (default: 4)
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Timeframe:   models.TimeframeDaily,
		ContextBars: 200,
		Workers:     4,
	}
}

// ════════════════════════════════════════════════════════════════════
// Engine
// ════════════════════════════════════════════════════════════════════

// Engine runs strategies against OHLCV tables. It holds no per-run state
// and is safe for concurrent use.
type Engine struct {
	cfg Config
	reg *functions.Registry
	log logrus.FieldLogger
}

// NewEngine creates a backtesting engine. A nil registry selects the
// built-in functions and a nil logger discards output.
func NewEngine(cfg Config, reg *functions.Registry, log logrus.FieldLogger) *Engine {
	def := DefaultConfig()
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.ContextBars <= 0 {
		cfg.ContextBars = def.ContextBars
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if reg == nil {
		reg = functions.Builtin()
	}
	if log == nil {
		log = infra.Discard()
	}
	return &Engine{cfg: cfg, reg: reg, log: log}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// RunOptions scope one run. The table passed to Run is filtered to
// Session and Period before resampling to Timeframe.
type RunOptions struct {
	Symbol    string
	Sessions  market.Sessions
	Session   string
	Period    string
	Timeframe models.Timeframe // overrides Config.Timeframe
}

// Job is one independent backtest for RunMany.
type Job struct {
	Table    *table.Table
	Strategy Strategy
	Options  RunOptions
}

// Run executes the strategy against t and returns the trade log, metrics
// and summary. Failures are returned as *query.Error.
func (e *Engine) Run(t *table.Table, s Strategy, opts RunOptions) (res *models.BacktestResult, err error) {
	started := time.Now()
	runID := infra.NewID()
	log := e.log.WithFields(logrus.Fields{"component": "backtest", "run_id": runID, "symbol": opts.Symbol})

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("backtest panicked")
			res, err = nil, &query.Error{Type: query.TypeInternal, Step: stepName, Message: fmt.Sprintf("internal error: %v", rec)}
		}
	}()

	if err := s.Validate(e.reg); err != nil {
		return nil, query.AsError(err)
	}
	tf := opts.Timeframe
	if tf == "" {
		tf = e.cfg.Timeframe
	}
	if !allowedTimeframe(tf) {
		names := make([]string, len(Timeframes))
		for i, v := range Timeframes {
			names[i] = string(v)
		}
		return nil, invalid(string(tf), "Unsupported timeframe '%s'. Allowed: %s", tf, strings.Join(names, ", "))
	}

	log.WithFields(logrus.Fields{"entry": s.Entry, "direction": s.Direction, "timeframe": tf}).Debug("backtest started")

	src, sess, err := e.scope(t, opts, log)
	if err != nil {
		return nil, query.AsError(err)
	}

	result := &models.BacktestResult{
		RunID:       runID,
		Symbol:      opts.Symbol,
		Timeframe:   tf,
		Trades:      []models.Trade{},
		EquityCurve: []float64{},
	}

	bars := query.Resample(src, tf)
	if sess != nil {
		bars = query.TagSessions(bars, *sess)
	}
	if bars.Len() >= 2 {
		sim, err := e.newSimulator(src, bars, s)
		if err != nil {
			return nil, err
		}
		if result.Trades, err = sim.run(); err != nil {
			return nil, err
		}
	}
	finish(result)

	log.WithFields(logrus.Fields{
		"bars":    bars.Len(),
		"trades":  result.Metrics.TotalTrades,
		"pnl":     result.Metrics.TotalPnL,
		"elapsed": time.Since(started),
	}).Info("backtest finished")
	return result, nil
}

// RunMany runs independent backtests concurrently, at most Config.Workers
// at a time. Results keep the order of jobs; the first failure cancels the
// jobs that have not started.
func (e *Engine) RunMany(ctx context.Context, jobs []Job) ([]*models.BacktestResult, error) {
	results := make([]*models.BacktestResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Run(job.Table, job.Strategy, job.Options)
			if err != nil {
				return fmt.Errorf("backtest %d (%s): %w", i, job.Options.Symbol, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scope applies the session and period filters. The returned session is
// set when the named session is known, for tagging the resampled bars.
func (e *Engine) scope(t *table.Table, opts RunOptions, log *logrus.Entry) (*table.Table, *market.Session, error) {
	var sess *market.Session
	if opts.Session != "" {
		if s, ok := opts.Sessions.Lookup(opts.Session); ok {
			sess = &s
		}
		if query.HasTimeOfDay(t) {
			var warn string
			t, warn = query.FilterSession(t, opts.Session, opts.Sessions)
			if warn != "" {
				log.WithField("session", opts.Session).Warn(warn)
			}
		}
	}
	if opts.Period != "" {
		var err error
		if t, err = query.FilterPeriod(t, opts.Period); err != nil {
			return nil, nil, err
		}
	}
	return t, sess, nil
}

func allowedTimeframe(tf models.Timeframe) bool {
	for _, v := range Timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// ════════════════════════════════════════════════════════════════════
// Simulation
// ════════════════════════════════════════════════════════════════════

// span is the half-open range of source rows that make up one bar.
type span struct{ from, to int }

type simulator struct {
	s       Strategy
	reg     *functions.Registry
	context int

	bars                   *table.Table
	open, high, low, close []float64
	entries                []bool

	// source rows, for exit resolution inside a bar
	srcHigh, srcLow []float64
	spans           []span
}

func (e *Engine) newSimulator(src, bars *table.Table, s Strategy) (*simulator, error) {
	entries, err := entrySignals(bars, s.Entry, e.reg)
	if err != nil {
		return nil, err
	}
	return &simulator{
		s:       s,
		reg:     e.reg,
		context: e.cfg.ContextBars,
		bars:    bars,
		open:    bars.Floats(table.ColOpen),
		high:    bars.Floats(table.ColHigh),
		low:     bars.Floats(table.ColLow),
		close:   bars.Floats(table.ColClose),
		entries: entries,
		srcHigh: src.Floats(table.ColHigh),
		srcLow:  src.Floats(table.ColLow),
		spans:   barSpans(src.Index(), bars.Index()),
	}, nil
}

// entrySignals evaluates the entry expression once over all bars. Missing
// values never signal.
func entrySignals(bars *table.Table, expr string, reg *functions.Registry) ([]bool, error) {
	v, err := barbql.Evaluate(expr, bars, reg)
	if err != nil {
		return nil, stepError(err, "entry", expr)
	}
	switch {
	case v.Type == table.ScalarValue && v.Scalar.Kind == table.Bool:
		return table.Repeat(v.Scalar, bars.Len()).Bools(), nil
	case v.IsColumn() && v.Column.Kind() == table.Bool:
		return v.Column.Bools(), nil
	}
	return nil, &query.Error{
		Type:       query.TypeType,
		Step:       "entry",
		Expression: expr,
		Message:    fmt.Sprintf("entry must produce a boolean series, got %s", v.TypeName()),
	}
}

// barSpans maps every bar to the source rows whose timestamp falls between
// its label and the next bar's label. Both indexes are sorted.
func barSpans(src, bars []time.Time) []span {
	spans := make([]span, len(bars))
	j := 0
	for i := range bars {
		for j < len(src) && src[j].Before(bars[i]) {
			j++
		}
		spans[i].from = j
		if i+1 < len(bars) {
			spans[i].to = j + sort.Search(len(src)-j, func(k int) bool { return !src[j+k].Before(bars[i+1]) })
		} else {
			spans[i].to = len(src)
		}
		j = spans[i].to
	}
	return spans
}

// position is an open trade. NaN disables a price level.
type position struct {
	bar        int
	price      float64
	stop       float64
	takeProfit float64
	target     float64
	trail      float64
	best       float64
	stopReason models.ExitReason
	breakeven  bool
}

func (sim *simulator) run() ([]models.Trade, error) {
	trades := []models.Trade{}
	last := sim.bars.Len() - 1
	var pos *position

	for i := 0; i <= last; i++ {
		if pos != nil {
			held := i - pos.bar
			sim.moveToBreakeven(pos, i, held)
			price, reason, ok := sim.exit(pos, i, held)
			if !ok && i == last {
				price, reason, ok = sim.close[i], models.ExitEnd, true
			}
			if ok {
				trades = append(trades, sim.trade(pos, i, price, reason))
				pos = nil
			}
			continue
		}

		if i == 0 || !sim.entries[i-1] {
			continue
		}
		var err error
		if pos, err = sim.enter(i); err != nil {
			return nil, err
		}
		price, reason, ok := sim.exit(pos, i, 0)
		if !ok && i == last {
			price, reason, ok = sim.close[i], models.ExitEnd, true
		}
		if ok {
			trades = append(trades, sim.trade(pos, i, price, reason))
			pos = nil
		}
	}
	return trades, nil
}

// enter opens a position at bar i's open for the signal on bar i-1.
func (sim *simulator) enter(i int) (*position, error) {
	s := sim.s
	price := sim.open[i]
	if s.isLong() {
		price += s.Slippage
	} else {
		price -= s.Slippage
	}
	pos := &position{
		bar:        i,
		price:      price,
		stop:       math.NaN(),
		takeProfit: math.NaN(),
		target:     math.NaN(),
		trail:      math.NaN(),
		best:       price,
		stopReason: models.ExitStop,
	}
	if s.StopLoss != nil {
		pos.stop = sim.away(price, -s.StopLoss.Distance(price))
	}
	if s.TakeProfit != nil {
		pos.takeProfit = sim.away(price, s.TakeProfit.Distance(price))
	}
	if s.TrailingStop != nil {
		pos.trail = s.TrailingStop.Distance(price)
	}
	if s.ExitTarget != "" {
		target, err := sim.exitTarget(i - 1)
		if err != nil {
			return nil, err
		}
		pos.target = target
	}
	return pos, nil
}

// away moves price by d points in the trade's favour (negative d moves
// against it).
func (sim *simulator) away(price, d float64) float64 {
	if sim.s.isLong() {
		return price + d
	}
	return price - d
}

// exitTarget evaluates the exit_target expression on the signal bar with
// up to ContextBars bars of history and returns its last value.
func (sim *simulator) exitTarget(signal int) (float64, error) {
	expr := sim.s.ExitTarget
	ctx := sim.bars.Slice(signal+1-sim.context, signal+1)
	v, err := barbql.Evaluate(expr, ctx, sim.reg)
	if err != nil {
		return 0, stepError(err, "exit_target", expr)
	}
	switch {
	case v.IsColumn():
		if v.Column.Len() == 0 {
			return math.NaN(), nil
		}
		return v.Column.At(v.Column.Len() - 1).Float(), nil
	case v.Type == table.ScalarValue:
		return v.Scalar.Float(), nil
	}
	return 0, &query.Error{
		Type:       query.TypeType,
		Step:       "exit_target",
		Expression: expr,
		Message:    fmt.Sprintf("exit_target must produce a price, got %s", v.TypeName()),
	}
}

// moveToBreakeven moves the stop to the entry price once BreakevenBars
// bars have passed and the bar opens in profit.
func (sim *simulator) moveToBreakeven(pos *position, i, held int) {
	n := sim.s.BreakevenBars
	if n <= 0 || pos.breakeven || held < n {
		return
	}
	inProfit := sim.open[i] < pos.price
	if sim.s.isLong() {
		inProfit = sim.open[i] > pos.price
	}
	if inProfit {
		pos.stop = pos.price
		pos.stopReason = models.ExitBreakeven
		pos.breakeven = true
	}
}

// exit checks bar i for an exit. Price levels are checked row by row over
// the bar's source rows, or against the bar itself when it has none; the
// bar-count timeout applies after them.
func (sim *simulator) exit(pos *position, i, held int) (float64, models.ExitReason, bool) {
	sp := sim.spans[i]
	if sp.to > sp.from {
		for j := sp.from; j < sp.to; j++ {
			if price, reason, ok := sim.hit(pos, sim.srcHigh[j], sim.srcLow[j]); ok {
				return price, reason, true
			}
		}
	} else if price, reason, ok := sim.hit(pos, sim.high[i], sim.low[i]); ok {
		return price, reason, true
	}

	if n := sim.s.ExitBars; n > 0 && held >= n {
		return sim.close[i], models.ExitTimeout, true
	}
	return 0, "", false
}

// hit checks one high/low pair in priority order: stop, take profit,
// target. The trailing stop follows the best price first and replaces the
// fixed stop when it is tighter.
func (sim *simulator) hit(pos *position, high, low float64) (float64, models.ExitReason, bool) {
	long := sim.s.isLong()

	stop, reason := pos.stop, pos.stopReason
	if !math.IsNaN(pos.trail) {
		var trailing float64
		if long {
			pos.best = math.Max(pos.best, high)
			trailing = pos.best - pos.trail
		} else {
			pos.best = math.Min(pos.best, low)
			trailing = pos.best + pos.trail
		}
		if math.IsNaN(stop) || (long && trailing >= stop) || (!long && trailing <= stop) {
			stop, reason = trailing, models.ExitTrailingStop
		}
	}

	if long {
		switch {
		case low <= stop:
			return stop, reason, true
		case high >= pos.takeProfit:
			return pos.takeProfit, models.ExitTakeProfit, true
		case high >= pos.target:
			return pos.target, models.ExitTarget, true
		}
		return 0, "", false
	}
	switch {
	case high >= stop:
		return stop, reason, true
	case low <= pos.takeProfit:
		return pos.takeProfit, models.ExitTakeProfit, true
	case low <= pos.target:
		return pos.target, models.ExitTarget, true
	}
	return 0, "", false
}

// trade closes pos at price on bar i, applying exit slippage and
// commission.
func (sim *simulator) trade(pos *position, i int, price float64, reason models.ExitReason) models.Trade {
	s := sim.s
	var pnl float64
	if s.isLong() {
		price -= s.Slippage
		pnl = price - pos.price
	} else {
		price += s.Slippage
		pnl = pos.price - price
	}
	pnl -= s.Commission

	return models.Trade{
		EntryDate:  sim.bars.Time(pos.bar),
		EntryPrice: roundTo(pos.price, pricePlaces),
		ExitDate:   sim.bars.Time(i),
		ExitPrice:  roundTo(price, pricePlaces),
		Direction:  s.Direction,
		PnL:        roundTo(pnl, pricePlaces),
		ExitReason: reason,
		BarsHeld:   i - pos.bar,
	}
}

func stepError(err error, step, expr string) *query.Error {
	out := query.AsError(err)
	if out.Step == "" {
		out.Step = step
	}
	if out.Expression == "" {
		out.Expression = expr
	}
	return out
}
