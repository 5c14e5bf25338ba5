// Package agent implements IndependentAgent (§4.2): one role-specialized
// worker that gathers role-appropriate inputs, asks the language model for
// a strict structured read, and stores the latest report. Grounded on
// other_examples' autonomous-agent.go (benedict-anokye-davies-atlas-ai) and
// internal-agents-graph.go (littleSan-crypto-trading-bot) for the
// gather→prompt→parse→store shape and the "never raise, degrade to
// neutral" error policy, and on llm-analyzer.go
// (koshedutech-binance-trading-app) for the strict-JSON response parsing
// and markdown-fence stripping.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/llm"
	"github.com/chidi150c/perpengine/internal/metrics"
	"github.com/chidi150c/perpengine/internal/signal"
	"github.com/chidi150c/perpengine/internal/types"
)

// Role is a closed enumeration of agent specializations (§4.2/§6).
type Role string

const (
	RoleTechnical    Role = "technical"
	RoleStructure    Role = "structure"
	RoleMarket       Role = "market"
	RoleSentiment    Role = "sentiment"
	RoleRisk         Role = "risk"
	RoleMomentum     Role = "momentum"
	RoleBull         Role = "bull"
	RoleBear         Role = "bear"
	RoleFundamentals Role = "fundamentals"
)

// Agent is one IndependentAgent instance.
type Agent struct {
	name     string
	role     Role
	symbol   string
	interval time.Duration

	ex  exchange.Client
	llm llm.Client
	log zerolog.Logger

	mu     sync.RWMutex
	latest *types.AgentReport

	runMu sync.Mutex

	subscribers []chan types.AgentReport
	subMu       sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New builds an IndependentAgent. interval is measured cycle-start to
// cycle-start (§4.2): a slow cycle defers, never overlaps, the next one.
func New(name string, role Role, symbol string, interval time.Duration, ex exchange.Client, lc llm.Client, log zerolog.Logger) *Agent {
	return &Agent{
		name:     name,
		role:     role,
		symbol:   symbol,
		interval: interval,
		ex:       ex,
		llm:      lc,
		log:      log.With().Str("component", "agent").Str("agent", name).Str("role", string(role)).Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the fixed-interval cycle loop. First cycle runs
// immediately (§4.2).
func (a *Agent) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop requests shutdown and waits briefly for the loop to exit.
func (a *Agent) Stop() {
	close(a.stop)
	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
	}
}

// LatestReport returns the most recent report, or nil if none yet.
func (a *Agent) LatestReport() *types.AgentReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Subscribe returns a channel receiving each future report.
func (a *Agent) Subscribe() <-chan types.AgentReport {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	ch := make(chan types.AgentReport, 4)
	a.subscribers = append(a.subscribers, ch)
	return ch
}

func (a *Agent) emit(r types.AgentReport) {
	a.mu.Lock()
	a.latest = &r
	a.mu.Unlock()

	a.subMu.Lock()
	subs := append([]chan types.AgentReport(nil), a.subscribers...)
	a.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	// First cycle runs immediately.
	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

// cycle runs one gather→prompt→parse→store round. A cycle already in
// flight is never re-entered (overlap prevention, §4.2): runMu.TryLock makes
// a call that finds a cycle still running return at once, so that tick is
// skipped rather than queued.
func (a *Agent) cycle(ctx context.Context) {
	if !a.runMu.TryLock() {
		a.log.Warn().Msg("previous cycle still running, deferring this tick")
		return
	}
	defer a.runMu.Unlock()

	start := time.Now()
	report := a.runCycle(ctx)
	metrics.AgentCycleDuration.WithLabelValues(a.name, string(a.role)).Observe(time.Since(start).Seconds())
	a.emit(report)
}

// runCycle never returns an error to the caller: any failure degrades to a
// neutral/low-confidence report (§4.2 step 4, §7 class 2).
func (a *Agent) runCycle(ctx context.Context) types.AgentReport {
	digest, err := a.gather(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("gather failed, emitting neutral report")
		return a.neutralReport("gather error: " + err.Error())
	}

	systemPrompt := a.systemPrompt()
	userPrompt := a.userPrompt(digest)

	timeout := a.interval - 2*time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	raw, err := a.llm.Complete(ctx, systemPrompt, userPrompt, timeout)
	if err != nil {
		a.log.Warn().Err(err).Msg("llm call failed, emitting neutral report")
		return a.neutralReport("llm error: " + err.Error())
	}

	report, err := a.parse(raw)
	if err != nil {
		a.log.Warn().Err(err).Msg("parse failed, emitting neutral report")
		return a.neutralReport("parse error: " + err.Error())
	}

	_ = a.ex.UploadAILog(ctx, exchange.AILogEntry{
		Stage:       string(a.role),
		Input:       userPrompt,
		Output:      raw,
		Explanation: report.Reasoning,
	})

	return report
}

func (a *Agent) neutralReport(reason string) types.AgentReport {
	metrics.AgentErrors.WithLabelValues(a.name, string(a.role)).Inc()
	return types.AgentReport{
		AgentName:  a.name,
		Role:       string(a.role),
		Timestamp:  time.Now().UTC(),
		Signal:     types.SignalNeutral,
		Confidence: 0.5,
		Reasoning:  reason,
	}
}

type structuredResponse struct {
	Signal     string         `json:"signal"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Data       map[string]any `json:"data"`
}

func (a *Agent) parse(raw string) (types.AgentReport, error) {
	clean := llm.StripMarkdownCodeBlock(raw)
	var sr structuredResponse
	if err := json.Unmarshal([]byte(clean), &sr); err != nil {
		return types.AgentReport{}, err
	}
	sig := types.AgentSignal(strings.ToLower(strings.TrimSpace(sr.Signal)))
	switch sig {
	case types.SignalBullish, types.SignalBearish, types.SignalNeutral:
	default:
		sig = types.SignalNeutral
	}
	conf := sr.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return types.AgentReport{
		AgentName:  a.name,
		Role:       string(a.role),
		Timestamp:  time.Now().UTC(),
		Signal:     sig,
		Confidence: conf,
		Reasoning:  sr.Reasoning,
		Payload:    sr.Data,
	}, nil
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf(
		"You are the %s analyst on a perpetual futures trading desk for %s. "+
			"Respond ONLY with strict JSON: {\"signal\":\"bullish|bearish|neutral\","+
			"\"confidence\":0..1,\"reasoning\":\"...\",\"data\":{}}.",
		a.role, a.symbol,
	)
}

func (a *Agent) userPrompt(digest map[string]any) string {
	b, _ := json.Marshal(digest)
	return fmt.Sprintf("Pre-computed indicators for %s: %s\nGive your directional read.", a.symbol, string(b))
}

// gather pulls the role-appropriate inputs via the exchange client and
// computes a cheap local pre-digest so the prompt carries numbers, not raw
// arrays (§4.2 step 1-2, §6 per-role input table).
func (a *Agent) gather(ctx context.Context) (map[string]any, error) {
	digest := map[string]any{}

	switch a.role {
	case RoleTechnical, RoleMomentum:
		candles, err := a.ex.GetCandles(ctx, a.symbol, "1m", 200)
		if err != nil {
			return nil, err
		}
		if len(candles) < 30 {
			return nil, fmt.Errorf("insufficient candle history: %d", len(candles))
		}
		rsi := signal.RSI(candles, 14)
		ema9 := signal.EMA(candles, 9)
		ema21 := signal.EMA(candles, 21)
		_, _, hist := signal.MACD(candles)
		atr := signal.ATR(candles, 14)
		digest["rsi14"] = last(rsi)
		digest["ema9"] = last(ema9)
		digest["ema21"] = last(ema21)
		digest["macd_hist"] = last(hist)
		digest["atr14"] = last(atr)
		digest["close"] = candles[len(candles)-1].Close

	case RoleStructure:
		depth, err := a.ex.GetDepth(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		funding, _ := a.ex.GetFundingRate(ctx, a.symbol)
		positions, _ := a.ex.GetPositions(ctx)
		assets, _ := a.ex.GetAssets(ctx)
		digest["obi"] = signal.OBI(depth)
		digest["funding_rate"] = funding.FundingRate
		digest["open_positions"] = len(positions)
		digest["assets"] = len(assets)
		if len(depth.Bids) > 0 && len(depth.Asks) > 0 {
			digest["spread"] = depth.Asks[0].Price - depth.Bids[0].Price
		}

	case RoleMarket:
		depth, err := a.ex.GetDepth(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		ticker, err := a.ex.GetTicker(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		digest["obi"] = signal.OBI(depth)
		digest["last"] = ticker.Last
		digest["bid"] = ticker.Bid
		digest["ask"] = ticker.Ask

	case RoleSentiment:
		funding, err := a.ex.GetFundingRate(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		ticker, err := a.ex.GetTicker(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		digest["funding_rate"] = funding.FundingRate
		digest["change24h"] = ticker.Change24h

	case RoleRisk:
		assets, err := a.ex.GetAssets(ctx)
		if err != nil {
			return nil, err
		}
		positions, err := a.ex.GetPositions(ctx)
		if err != nil {
			return nil, err
		}
		digest["assets"] = assets
		digest["positions"] = positions

	case RoleBull, RoleBear:
		ticker, err := a.ex.GetTicker(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		funding, _ := a.ex.GetFundingRate(ctx, a.symbol)
		candles, err := a.ex.GetCandles(ctx, a.symbol, "1m", 60)
		if err == nil && len(candles) >= 15 {
			rsi := signal.RSI(candles, 14)
			digest["rsi14"] = last(rsi)
		}
		digest["last"] = ticker.Last
		digest["funding_rate"] = funding.FundingRate

	case RoleFundamentals:
		ticker, err := a.ex.GetTicker(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		funding, err := a.ex.GetFundingRate(ctx, a.symbol)
		if err != nil {
			return nil, err
		}
		digest["last"] = ticker.Last
		digest["funding_rate"] = funding.FundingRate

	default:
		return nil, fmt.Errorf("unknown role %q", a.role)
	}

	return digest, nil
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}
