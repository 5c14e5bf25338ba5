// Package hotloop implements the HotLoop (§4.5): the synchronous,
// single-goroutine-per-symbol tick handler that is the only place an order
// is actually dispatched. Ported from the teacher's step.go/trader.go tick
// handler (lock-held state mutation, lock released around network I/O,
// side derivation, size-from-risk, breaker gate, optimistic position
// update, periodic reconciliation) but reduced to the spec's single-lot
// model: no pyramiding, no trailing stop, no async maker-first opens.
package hotloop

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/perpengine/internal/coordinator"
	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/marketdata"
	"github.com/chidi150c/perpengine/internal/metrics"
	"github.com/chidi150c/perpengine/internal/risk"
	"github.com/chidi150c/perpengine/internal/signal"
	"github.com/chidi150c/perpengine/internal/types"
)

// statusLogSampleRate is the fraction of ticks that emit a status log line
// at Debug level, keeping steady-state log volume low (§4.5 step 8).
const statusLogSampleRate = 0.05

// reconcileEvery is how many ticks elapse between position reconciliation
// calls against the exchange (§4.5 step 7).
const reconcileEvery = 200

// staleCheckInterval is how often the loop polls the feed for staleness when
// no tick has arrived, triggering the REST fallback path (§4.1).
const staleCheckInterval = 5 * time.Second

// HotLoop is the per-symbol synchronous evaluator.
type HotLoop struct {
	symbol string
	ex     exchange.Client
	coord  *coordinator.Coordinator
	feed   *marketdata.Feed
	risk   *risk.Engine
	log    zerolog.Logger

	mu          sync.Mutex
	pw          *signal.PriceWindow
	position    types.Position
	lastOrderAt time.Time
	tickCount   int64

	ticks  <-chan types.Tick
	handle marketdata.TickHandle

	stop chan struct{}
	done chan struct{}
}

// New builds a HotLoop subscribed to feed for symbol, reading advisories
// and TradingConfig from coord and gating every order through eng.
func New(symbol string, feed *marketdata.Feed, coord *coordinator.Coordinator, eng *risk.Engine, ex exchange.Client, log zerolog.Logger) *HotLoop {
	ticks, handle := feed.Subscribe()
	return &HotLoop{
		symbol: symbol,
		ex:     ex,
		coord:  coord,
		feed:   feed,
		risk:   eng,
		log:    log.With().Str("component", "hotloop").Str("symbol", symbol).Logger(),
		pw:     signal.NewPriceWindow(200),
		ticks:  ticks,
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetPosition adopts an externally-known position (startup reconciliation
// from the exchange, §4.5 step 7 applied at boot) before the loop starts
// processing ticks.
func (h *HotLoop) SetPosition(p types.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = p
}

// Start launches the tick-consuming goroutine.
func (h *HotLoop) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop unsubscribes from the feed and waits for the loop to drain.
func (h *HotLoop) Stop() {
	h.handle()
	close(h.stop)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

func (h *HotLoop) run(ctx context.Context) {
	defer close(h.done)

	staleCheck := time.NewTicker(staleCheckInterval)
	defer staleCheck.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case tick, ok := <-h.ticks:
			if !ok {
				return
			}
			h.onTick(ctx, tick)
		case <-staleCheck.C:
			h.checkFallback(ctx)
		}
	}
}

// checkFallback fetches a single tick over REST and feeds it through onTick
// when the feed's push stream has gone stale (§4.1 degraded-state fallback).
func (h *HotLoop) checkFallback(ctx context.Context) {
	if !h.feed.IsStale(time.Now().UTC()) {
		return
	}
	tick, err := h.feed.FetchFallback(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("rest fallback fetch failed")
		return
	}
	metrics.Decisions.WithLabelValues(h.symbol, "fallback_tick").Inc()
	h.onTick(ctx, tick)
}

// onTick is the per-tick synchronous evaluator (§4.5 steps 1-8). State
// mutation is held under mu; network calls (exchange reconciliation, order
// dispatch) happen with the lock released, mirroring the teacher's
// lock/release-around-I/O discipline in step.go.
func (h *HotLoop) onTick(ctx context.Context, t types.Tick) {
	h.mu.Lock()
	h.pw.Push(t.LastPrice)
	h.tickCount++
	count := h.tickCount
	pos := h.position
	lastOrder := h.lastOrderAt
	h.mu.Unlock()

	cfg := h.coord.LatestTradingConfig()

	if count%reconcileEvery == 0 {
		h.reconcile(ctx)
	}

	adv := h.coord.LatestAdvisory()
	if adv.Stale(time.Now().UTC(), cfg.DecayWindow) {
		h.sampledLog(t, "skip: advisory stale or absent")
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_stale_advisory").Inc()
		return
	}

	depth, err := h.ex.GetDepth(ctx, h.symbol)
	if err != nil {
		depth = types.Depth{}
	}
	raw := signal.Combine(h.pw, depth, cfg)
	biased := raw + 0.15*biasStrength(adv)

	if !localConfirmation(adv.Action, adv.Confidence, h.pw) {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_local_confirmation").Inc()
		h.sampledLog(t, "skip: local confirmation failed")
		return
	}
	if !thresholdConfirmed(biased, cfg.SignalThreshold) {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_confidence").Inc()
		h.sampledLog(t, "skip: signal below threshold")
		return
	}
	if adv.Confidence < cfg.MinConfidence {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_confidence").Inc()
		h.sampledLog(t, "skip: advisory confidence below floor")
		return
	}

	if time.Since(lastOrder) < time.Duration(cfg.CooldownSeconds)*time.Second {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_cooldown").Inc()
		h.sampledLog(t, "skip: cooldown active")
		return
	}

	direction := directionFromSignal(biased, adv)
	if direction == types.ActionHold {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_hold").Inc()
		return
	}

	sideCode, ok := exchange.ResolveSideCode(direction, pos.Side)
	if !ok {
		// Already positioned in the intended direction, or a close with
		// nothing open: a documented no-op (§9).
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_noop").Inc()
		return
	}
	if sideCode == exchange.SideCloseLong || sideCode == exchange.SideCloseShort {
		// A close-side code flattens the open position (e.g. a short
		// advisory while long), so it is sized and recorded as a close.
		direction = types.ActionClose
	}

	equity := h.risk.Status().Equity
	size := sizeFromRisk(cfg, equity, t.LastPrice)
	if direction == types.ActionClose {
		size = pos.Size
	}

	projected := pos.Size + size
	if direction == types.ActionClose {
		projected = 0
	}
	if !h.risk.CanTrade(projected) {
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_risk").Inc()
		h.sampledLog(t, "skip: risk engine declined trade")
		return
	}

	order, err := h.ex.PlaceOrder(ctx, h.symbol, sideCode, size)
	if err != nil {
		h.log.Error().Err(err).Msg("order placement failed")
		metrics.Decisions.WithLabelValues(h.symbol, "skipped_order_error").Inc()
		return
	}

	h.applyOptimisticUpdate(direction, size, t.LastPrice)
	metrics.Orders.WithLabelValues(h.symbol, sideCodeLabel(sideCode)).Inc()
	metrics.Decisions.WithLabelValues(h.symbol, "dispatched").Inc()
	h.log.Info().
		Str("order_id", orderID(order)).
		Str("direction", string(direction)).
		Float64("size", size).
		Float64("price", t.LastPrice).
		Msg("order dispatched")
}

func orderID(o *exchange.Order) string {
	if o == nil {
		return ""
	}
	return o.ID
}

func (h *HotLoop) applyOptimisticUpdate(direction types.AdvisoryAction, size, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastOrderAt = time.Now().UTC()

	switch direction {
	case types.ActionClose:
		h.position = types.Position{Symbol: h.symbol}
	case types.ActionLong:
		h.position = types.Position{Symbol: h.symbol, Side: types.SideLong, Size: size, EntryPrice: price}
	case types.ActionShort:
		h.position = types.Position{Symbol: h.symbol, Side: types.SideShort, Size: size, EntryPrice: price}
	}
	sz := h.position.Size
	h.risk.UpdateState(risk.Partial{PositionSize: &sz})
}

// reconcile periodically re-derives the authoritative position from the
// exchange, correcting any drift the optimistic update accumulated (§4.5
// step 7, §7 class 3).
func (h *HotLoop) reconcile(ctx context.Context) {
	positions, err := h.ex.GetPositions(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("reconciliation fetch failed, keeping optimistic position")
		return
	}
	for _, p := range positions {
		if p.Symbol != h.symbol {
			continue
		}
		h.mu.Lock()
		h.position = types.Position{
			Symbol:     h.symbol,
			Side:       p.HoldSide,
			Size:       p.Total,
			EntryPrice: p.AverageOpenPrice,
		}
		h.mu.Unlock()
		return
	}
	h.mu.Lock()
	h.position = types.Position{Symbol: h.symbol}
	h.mu.Unlock()
}

func (h *HotLoop) sampledLog(t types.Tick, msg string) {
	if rand.Float64() > statusLogSampleRate {
		return
	}
	h.log.Debug().Float64("price", t.LastPrice).Msg(msg)
}

// biasStrength maps an advisory's action and confidence into a signed bias
// contribution consumed by the tick's combined signal (§4.5 step 3: s' = s
// + 0.15*biasStrength).
func biasStrength(a *types.Advisory) float64 {
	switch a.Action {
	case types.ActionLong:
		return a.Confidence
	case types.ActionShort:
		return -a.Confidence
	default:
		return 0
	}
}

// thresholdConfirmed is the §4.5 step 6 gate: the combined signal must meet
// or exceed the configured threshold in either direction (§8: |s'| ==
// signalThreshold triggers, boundary is inclusive).
func thresholdConfirmed(signalValue, threshold float64) bool {
	return signalValue >= threshold || signalValue <= -threshold
}

// localConfirmation is the §4.5 step 4 gate: a directional advisory is only
// acted on locally if either the advisory is itself strongly confident, or
// the local RSI agrees it isn't already exhausted in that direction. A close
// is always confirmed; hold (or any other action) is never confirmed, so a
// hold advisory stops at this gate.
func localConfirmation(action types.AdvisoryAction, confidence float64, pw *signal.PriceWindow) bool {
	switch action {
	case types.ActionClose:
		return true
	case types.ActionLong:
		return confidence > 0.7 || rsiLast(pw) < 70
	case types.ActionShort:
		return confidence > 0.7 || rsiLast(pw) > 30
	default:
		return false
	}
}

// rsiLast returns the most recent 14-period RSI, or the neutral midpoint
// before the window has enough history to compute one.
func rsiLast(pw *signal.PriceWindow) float64 {
	if pw.Len() < 15 {
		return 50
	}
	rsi := signal.RSI(pw.Candles(), 14)
	return rsi[len(rsi)-1]
}

func directionFromSignal(signalValue float64, a *types.Advisory) types.AdvisoryAction {
	switch {
	case a.Action == types.ActionClose:
		return types.ActionClose
	case signalValue > 0 && a.Action == types.ActionLong:
		return types.ActionLong
	case signalValue < 0 && a.Action == types.ActionShort:
		return types.ActionShort
	default:
		return types.ActionHold
	}
}

// sizeFromRisk derives an order size from equity, risk-per-trade, and
// price, clamped to the configured maximum position size (§4.5 step 5:
// size = equity * riskPerTrade / price).
func sizeFromRisk(cfg types.TradingConfig, equity, price float64) float64 {
	if price <= 0 {
		return 0
	}
	size := (equity * cfg.RiskPerTrade) / price
	return clamp(size, 0, cfg.MaxPositionSize)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func sideCodeLabel(s exchange.SideCode) string {
	switch s {
	case exchange.SideOpenLong:
		return "open_long"
	case exchange.SideCloseShort:
		return "close_short"
	case exchange.SideOpenShort:
		return "open_short"
	case exchange.SideCloseLong:
		return "close_long"
	default:
		return "unknown"
	}
}
