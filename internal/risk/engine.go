// Package risk implements the synchronous pre-trade gate (§4.6): a state
// machine owned by exactly one HotLoop, all operations O(1). Generalizes
// the breaker bookkeeping the teacher spreads across Trader (dailyPnL,
// peak tracking, updateDaily/midnightUTC in trader.go) into a standalone
// type, and uses shopspring/decimal for the notional/size arithmetic the
// teacher works around by hand with snapToStep.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpengine/internal/metrics"
)

// State is the breaker's two-state machine (§4.6).
type State int

const (
	Armed State = iota
	Tripped
)

// RiskState is the mutable snapshot CanTrade/UpdateState operate on.
type RiskState struct {
	Equity        float64
	InitialEquity float64
	PeakEquity    float64
	DailyPnL      float64
	PositionSize  float64
	OpenOrders    int
	Tripped       bool
	TripReason    string
}

// Limits are the configured trip thresholds.
type Limits struct {
	MaxDailyLossPct float64
	MinEquity       float64
	MaxDrawdownPct  float64
	MaxPositionSize float64
}

// Engine is the RiskEngine: owned by one HotLoop, all access serialized by
// that HotLoop's tick handler (§5). The mutex here guards against the
// reconciliation/metrics goroutines that may read status concurrently;
// trade decisions themselves run single-threaded from the hot path.
type Engine struct {
	symbol string
	mu     sync.Mutex
	state  RiskState
	limits Limits

	cronSched *cron.Cron
}

// New builds an Engine armed with the given starting equity and limits. A
// background cron job resets the daily-PnL reference at UTC midnight
// (aristath-sentinel's robfig/cron idiom), replacing the teacher's
// inline midnightUTC() comparison on every tick.
func New(symbol string, startEquity float64, limits Limits) *Engine {
	e := &Engine{
		symbol: symbol,
		state: RiskState{
			Equity:        startEquity,
			InitialEquity: startEquity,
			PeakEquity:    startEquity,
		},
		limits: limits,
	}
	e.cronSched = cron.New(cron.WithLocation(time.UTC))
	_, _ = e.cronSched.AddFunc("0 0 * * *", e.resetDailyReference)
	e.cronSched.Start()
	return e
}

// Stop halts the daily-reset cron job.
func (e *Engine) Stop() { e.cronSched.Stop() }

func (e *Engine) resetDailyReference() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.InitialEquity = e.state.Equity
	e.state.DailyPnL = 0
}

// Partial carries only the fields the caller wants to update; nil fields
// leave the corresponding state untouched, and every non-nil field is
// applied, even when it points at zero.
type Partial struct {
	Equity       *float64
	PositionSize *float64
	OpenOrders   *int
}

// UpdateState applies partial mutations and recomputes the maintained
// invariants atomically: peakEquity = max(peak, equity); dailyPnL = equity
// - initialEquity (§4.6).
func (e *Engine) UpdateState(p Partial) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.Equity != nil {
		e.state.Equity = *p.Equity
	}
	if p.PositionSize != nil {
		e.state.PositionSize = *p.PositionSize
	}
	if p.OpenOrders != nil {
		e.state.OpenOrders = *p.OpenOrders
	}
	if e.state.Equity > e.state.PeakEquity {
		e.state.PeakEquity = e.state.Equity
	}
	e.state.DailyPnL = e.state.Equity - e.state.InitialEquity
	metrics.Equity.WithLabelValues(e.symbol).Set(e.state.Equity)

	if !e.state.Tripped {
		e.checkTripConditionsLocked()
	}
}

func (e *Engine) checkTripConditionsLocked() {
	switch {
	case e.state.DailyPnL < -e.limits.MaxDailyLossPct*e.state.InitialEquity:
		e.tripLocked(fmt.Sprintf("daily loss %.2f exceeds limit", e.state.DailyPnL))
	case e.state.Equity < e.limits.MinEquity:
		e.tripLocked(fmt.Sprintf("equity %.2f below minimum %.2f", e.state.Equity, e.limits.MinEquity))
	case e.state.PeakEquity > 0 && (e.state.PeakEquity-e.state.Equity)/e.state.PeakEquity > e.limits.MaxDrawdownPct:
		dd := (e.state.PeakEquity - e.state.Equity) / e.state.PeakEquity
		e.tripLocked(fmt.Sprintf("drawdown %.2f%% exceeds limit", dd*100))
	}
}

func (e *Engine) tripLocked(reason string) {
	e.state.Tripped = true
	e.state.TripReason = reason
	metrics.BreakerTrips.WithLabelValues(e.symbol, reason).Inc()
}

// Trip latches the breaker directly (operator or caller-initiated trip).
func (e *Engine) Trip(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tripLocked(reason)
}

// Reset un-latches the breaker. Only happens out-of-band (operator action,
// §3); CanTrade stays false after a trip until this is called.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Tripped = false
	e.state.TripReason = ""
}

// CanTrade is the pre-trade gate (§4.6). Returns false if already tripped;
// otherwise rejects an order whose projected post-trade position size
// would exceed MaxPositionSize; otherwise re-evaluates the trip conditions
// against the current state (they do not depend on the projected size) and
// returns their negation.
func (e *Engine) CanTrade(projectedPositionSize float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Tripped {
		return false
	}
	projected := decimal.NewFromFloat(projectedPositionSize).Abs()
	limit := decimal.NewFromFloat(e.limits.MaxPositionSize)
	if projected.GreaterThan(limit) {
		return false
	}
	e.checkTripConditionsLocked()
	return !e.state.Tripped
}

// Status returns a copy of the current risk state.
func (e *Engine) Status() RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
