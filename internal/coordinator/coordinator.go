// Package coordinator implements the LeadCoordinator (§4.3): the single
// fusion point that turns N independent agent reports into one published
// Advisory, and the single writer of each symbol's TradingConfig. Grounded
// on yohannesjx-sniperterminal's co_pilot_service.go and hub.go
// (single-writer fan-in over many producer channels, publish via a
// broadcast-to-subscribers pattern) and other_examples' orchestrator.go
// (NevzatMmc-updown) for the "fixed interval, warmup skip, majority fusion"
// synthesis shape, now actually backed by a language-model call per §4.3
// steps 2-4 rather than a purely deterministic vote.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/perpengine/internal/agent"
	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/llm"
	"github.com/chidi150c/perpengine/internal/metrics"
	"github.com/chidi150c/perpengine/internal/types"
)

const (
	minReportsForSynthesis = 2
	agreementThreshold     = 0.7
	minPositionSizeHint    = 0.005
	maxPositionSizeHint    = 0.05
)

// coordinatorSystemPrompt is the fixed system prompt sent with every
// synthesis cycle (§4.3 step 3).
const coordinatorSystemPrompt = "You are the lead coordinator for a perpetual futures trading desk. " +
	"You receive a summary of independent analyst reports and must fuse them into one directional call. " +
	"Respond ONLY with strict JSON: {\"action\":\"long|short|hold|close\",\"confidence\":0..1," +
	"\"position_size_hint\":0..1,\"stop_loss_pct\":0..1,\"take_profit_pct\":0..1,\"reasoning\":\"...\"}."

// Coordinator is the LeadCoordinator for one symbol.
type Coordinator struct {
	symbol   string
	interval time.Duration
	log      zerolog.Logger

	llmClient llm.Client
	ex        exchange.Client

	agents []*agent.Agent

	mu            sync.RWMutex
	advisory      *types.Advisory
	baseConfig    types.TradingConfig
	tradingConfig *types.TradingConfig

	subscribers []chan types.Advisory
	subMu       sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New builds a LeadCoordinator for symbol with the given synthesis
// interval and baseline TradingConfig. Every republished TradingConfig is
// derived from base, never a prior published value (§9: the writer
// constructs a new immutable value each cycle).
func New(symbol string, interval time.Duration, base types.TradingConfig, llmClient llm.Client, ex exchange.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		symbol:     symbol,
		interval:   interval,
		llmClient:  llmClient,
		ex:         ex,
		baseConfig: base,
		log:        log.With().Str("component", "coordinator").Str("symbol", symbol).Logger(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// AddAgent registers an agent in the ordered set this coordinator fuses.
// Must be called before Start.
func (c *Coordinator) AddAgent(a *agent.Agent) {
	c.agents = append(c.agents, a)
}

// Start launches every owned agent and the synthesis loop. It is called
// once; the agents are started unconditionally.
func (c *Coordinator) Start(ctx context.Context) {
	for _, a := range c.agents {
		a.Start(ctx)
	}
	go c.run(ctx)
}

// Stop halts the synthesis loop and every owned agent.
func (c *Coordinator) Stop() {
	close(c.stop)
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	for _, a := range c.agents {
		a.Stop()
	}
}

// LatestAdvisory returns the most recently published advisory, or nil if
// none has been synthesized yet.
func (c *Coordinator) LatestAdvisory() *types.Advisory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.advisory
}

// LatestTradingConfig returns the most recently published TradingConfig, or
// the baseline config if no synthesis cycle has published one yet (§3/§5:
// single writer, many readers, pointer-swap publication).
func (c *Coordinator) LatestTradingConfig() types.TradingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tradingConfig == nil {
		return c.baseConfig
	}
	return *c.tradingConfig
}

// Subscribe returns a channel that receives each newly published advisory.
func (c *Coordinator) Subscribe() <-chan types.Advisory {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ch := make(chan types.Advisory, 4)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.synthesize(ctx)
		}
	}
}

// synthesize runs one fusion cycle: collect the latest report from each
// owned agent, skip on insufficient warmup, otherwise send a textual
// summary to the language model, parse its reply into an Advisory, apply
// the deterministic majority/clamp rules as post-processing on top, publish
// both the Advisory and a freshly derived TradingConfig (§4.3 steps 1-5,
// §9).
func (c *Coordinator) synthesize(ctx context.Context) {
	reports := make([]types.AgentReport, 0, len(c.agents))
	votes := make(map[string]types.AgentReport, len(c.agents))
	for _, a := range c.agents {
		if r := a.LatestReport(); r != nil {
			reports = append(reports, *r)
			votes[r.AgentName] = *r
		}
	}

	if len(reports) < minReportsForSynthesis {
		c.log.Debug().Int("reports", len(reports)).Msg("insufficient agent reports, skipping synthesis cycle")
		return
	}

	fused := fuse(reports)

	adv := c.askLLM(ctx, reports)

	// fusion rules applied as a post-processing step on top of the LLM's
	// own advisory (§4.3 step 3): a confident deterministic majority
	// overrides a disagreeing or wavering model call, and without such a
	// majority a directional model call is downgraded to hold.
	if fused.Action != types.ActionHold && adv.Action != fused.Action {
		adv.Action = fused.Action
		adv.Confidence = fused.Confidence
	}
	if fused.Action == types.ActionHold && (adv.Action == types.ActionLong || adv.Action == types.ActionShort) {
		adv.Action = types.ActionHold
		adv.Confidence = fused.Confidence
	}
	adv.PositionSizeHint = clamp(adv.PositionSizeHint, minPositionSizeHint, maxPositionSizeHint)
	adv.AgentVotes = votes
	adv.GeneratedAt = time.Now().UTC()

	c.mu.Lock()
	c.advisory = &adv
	c.mu.Unlock()

	c.publishTradingConfig(adv)

	metrics.AdvisoryConfidence.WithLabelValues(c.symbol).Set(adv.Confidence)

	c.subMu.Lock()
	subs := append([]chan types.Advisory(nil), c.subscribers...)
	c.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- adv:
		default:
		}
	}
}

// askLLM builds the per-cycle summary, calls the language model, and parses
// the reply. Any failure degrades to the documented fallback advisory
// (§4.3 step 4: on failure emit {hold,0.5,"error"}).
func (c *Coordinator) askLLM(ctx context.Context, reports []types.AgentReport) types.Advisory {
	fallback := types.Advisory{Action: types.ActionHold, Confidence: 0.5, Reasoning: "error"}

	summary := summarizeReports(reports)
	timeout := c.interval - time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	raw, err := c.llmClient.Complete(ctx, coordinatorSystemPrompt, summary, timeout)
	if err != nil {
		c.log.Warn().Err(err).Msg("coordinator llm call failed, using fallback advisory")
		return fallback
	}

	adv, err := parseAdvisory(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("coordinator llm response unparsable, using fallback advisory")
		return fallback
	}

	if c.ex != nil {
		_ = c.ex.UploadAILog(ctx, exchange.AILogEntry{
			Stage:       "coordinator",
			Input:       summary,
			Output:      raw,
			Explanation: adv.Reasoning,
		})
	}
	return adv
}

// publishTradingConfig derives a new TradingConfig from the baseline and the
// just-published advisory and swaps it in (§9: the writer constructs a new
// immutable value and publishes it). RiskPerTrade tracks the advisory's
// PositionSizeHint so the hot loop's order sizing follows the coordinator's
// confidence in the current call.
func (c *Coordinator) publishTradingConfig(adv types.Advisory) {
	cfg := c.baseConfig
	cfg.RiskPerTrade = clamp(adv.PositionSizeHint, minPositionSizeHint, maxPositionSizeHint)

	c.mu.Lock()
	c.tradingConfig = &cfg
	c.mu.Unlock()
}

// summarizeReports renders the agent set into the textual summary sent to
// the language model (§4.3 step 2).
func summarizeReports(reports []types.AgentReport) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "%s (%s): signal=%s confidence=%.2f reasoning=%q\n", r.AgentName, r.Role, r.Signal, r.Confidence, r.Reasoning)
	}
	return b.String()
}

type llmAdvisoryResponse struct {
	Action           string  `json:"action"`
	Confidence       float64 `json:"confidence"`
	PositionSizeHint float64 `json:"position_size_hint"`
	StopLossPct      float64 `json:"stop_loss_pct"`
	TakeProfitPct    float64 `json:"take_profit_pct"`
	Reasoning        string  `json:"reasoning"`
}

// parseAdvisory turns the model's strict-JSON reply into an Advisory. An
// unrecognized action degrades to hold rather than erroring the whole
// cycle.
func parseAdvisory(raw string) (types.Advisory, error) {
	clean := llm.StripMarkdownCodeBlock(raw)
	var r llmAdvisoryResponse
	if err := json.Unmarshal([]byte(clean), &r); err != nil {
		return types.Advisory{}, err
	}

	action := types.AdvisoryAction(strings.ToLower(strings.TrimSpace(r.Action)))
	switch action {
	case types.ActionLong, types.ActionShort, types.ActionHold, types.ActionClose:
	default:
		action = types.ActionHold
	}

	return types.Advisory{
		Action:           action,
		Confidence:       clamp(r.Confidence, 0, 1),
		PositionSizeHint: r.PositionSizeHint,
		StopLossPct:      r.StopLossPct,
		TakeProfitPct:    r.TakeProfitPct,
		Reasoning:        r.Reasoning,
	}, nil
}

// fuse applies the deterministic majority rule (§4.3 step 3): two-or-more
// agreeing signals, or a single signal with confidence > agreementThreshold,
// drive the action; otherwise hold. positionSizeHint is the mean confidence
// of the agreeing reports scaled by maxPositionSizeHint, clamped to
// [minPositionSizeHint, maxPositionSizeHint]; with no agreeing reports it
// is minPositionSizeHint.
func fuse(reports []types.AgentReport) types.Advisory {
	var bullish, bearish []types.AgentReport
	votes := make(map[string]types.AgentReport, len(reports))
	for _, r := range reports {
		votes[r.AgentName] = r
		switch r.Signal {
		case types.SignalBullish:
			bullish = append(bullish, r)
		case types.SignalBearish:
			bearish = append(bearish, r)
		}
	}

	action := types.ActionHold
	var agreeing []types.AgentReport
	switch {
	case len(bullish) >= 2, len(bullish) == 1 && bullish[0].Confidence > agreementThreshold:
		action = types.ActionLong
		agreeing = bullish
	case len(bearish) >= 2, len(bearish) == 1 && bearish[0].Confidence > agreementThreshold:
		action = types.ActionShort
		agreeing = bearish
	}

	var confSum float64
	for _, r := range agreeing {
		confSum += r.Confidence
	}
	sizeHint := minPositionSizeHint
	if len(agreeing) > 0 {
		sizeHint = clamp(confSum/float64(len(agreeing))*maxPositionSizeHint, minPositionSizeHint, maxPositionSizeHint)
	}

	conf := 0.0
	if len(agreeing) > 0 {
		conf = confSum / float64(len(agreeing))
	}

	return types.Advisory{
		Action:           action,
		Confidence:       conf,
		PositionSizeHint: sizeHint,
		StopLossPct:      0.02,
		TakeProfitPct:    0.04,
		Reasoning:        reasoningSummary(action, agreeing),
		AgentVotes:       votes,
	}
}

func reasoningSummary(action types.AdvisoryAction, agreeing []types.AgentReport) string {
	if len(agreeing) == 0 {
		return "no agent majority; holding"
	}
	names := ""
	for i, r := range agreeing {
		if i > 0 {
			names += ", "
		}
		names += r.AgentName
	}
	return string(action) + " backed by " + names
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
