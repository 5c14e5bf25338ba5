package coordinator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/logging"
	"github.com/chidi150c/perpengine/internal/types"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, timeout time.Duration) (string, error) {
	return f.response, f.err
}

func report(name string, sig types.AgentSignal, conf float64) types.AgentReport {
	return types.AgentReport{AgentName: name, Signal: sig, Confidence: conf}
}

func TestFuse_TwoBullishAgreeToLong(t *testing.T) {
	reports := []types.AgentReport{
		report("technical", types.SignalBullish, 0.6),
		report("momentum", types.SignalBullish, 0.8),
		report("sentiment", types.SignalNeutral, 0.5),
	}
	adv := fuse(reports)
	assert.Equal(t, types.ActionLong, adv.Action)
	assert.GreaterOrEqual(t, adv.PositionSizeHint, minPositionSizeHint)
	assert.LessOrEqual(t, adv.PositionSizeHint, maxPositionSizeHint)
}

func TestFuse_SingleStrongBullishIsEnough(t *testing.T) {
	reports := []types.AgentReport{
		report("technical", types.SignalBullish, 0.9),
		report("sentiment", types.SignalNeutral, 0.5),
	}
	adv := fuse(reports)
	assert.Equal(t, types.ActionLong, adv.Action)
}

func TestFuse_SingleWeakSignalHolds(t *testing.T) {
	reports := []types.AgentReport{
		report("technical", types.SignalBullish, 0.6),
		report("sentiment", types.SignalNeutral, 0.5),
	}
	adv := fuse(reports)
	assert.Equal(t, types.ActionHold, adv.Action)
}

func TestFuse_ConflictingSignalsHold(t *testing.T) {
	reports := []types.AgentReport{
		report("technical", types.SignalBullish, 0.6),
		report("momentum", types.SignalBearish, 0.6),
	}
	adv := fuse(reports)
	assert.Equal(t, types.ActionHold, adv.Action)
}

func TestFuse_PositionSizeHintNeverBelowFloor(t *testing.T) {
	reports := []types.AgentReport{
		report("a", types.SignalNeutral, 0.5),
		report("b", types.SignalNeutral, 0.5),
	}
	adv := fuse(reports)
	assert.Equal(t, minPositionSizeHint, adv.PositionSizeHint)
}

func TestParseAdvisory_ParsesValidJSON(t *testing.T) {
	adv, err := parseAdvisory(`{"action":"long","confidence":0.9,"position_size_hint":0.03,"reasoning":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, types.ActionLong, adv.Action)
	assert.Equal(t, 0.9, adv.Confidence)
	assert.Equal(t, 0.03, adv.PositionSizeHint)
}

func TestParseAdvisory_UnknownActionFallsBackToHold(t *testing.T) {
	adv, err := parseAdvisory(`{"action":"bogus","confidence":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, adv.Action)
}

func TestParseAdvisory_MalformedJSONErrors(t *testing.T) {
	_, err := parseAdvisory("not json")
	require.Error(t, err)
}

func TestCoordinator_SynthesisSkippedBelowWarmup(t *testing.T) {
	log := logging.New("error", io.Discard)
	llmClient := &fakeLLM{response: `{"action":"hold","confidence":0.5,"reasoning":"warmup"}`}
	ex := exchange.NewPaperClient(0, 0)
	c := New("BTC-USDT-SWAP", time.Second, types.DefaultTradingConfig(), llmClient, ex, log)
	c.synthesize(context.Background())
	assert.Nil(t, c.LatestAdvisory())
}

func TestCoordinator_LatestTradingConfig_DefaultsBeforePublish(t *testing.T) {
	log := logging.New("error", io.Discard)
	ex := exchange.NewPaperClient(0, 0)
	base := types.DefaultTradingConfig()
	c := New("BTC-USDT-SWAP", time.Second, base, &fakeLLM{}, ex, log)
	assert.Equal(t, base, c.LatestTradingConfig())
}

func TestCoordinator_PublishTradingConfig_TracksPositionSizeHint(t *testing.T) {
	log := logging.New("error", io.Discard)
	ex := exchange.NewPaperClient(0, 0)
	base := types.DefaultTradingConfig()
	c := New("BTC-USDT-SWAP", time.Second, base, &fakeLLM{}, ex, log)

	c.publishTradingConfig(types.Advisory{PositionSizeHint: 0.03})
	assert.Equal(t, 0.03, c.LatestTradingConfig().RiskPerTrade)
}

func TestCoordinator_AskLLM_FallsBackOnError(t *testing.T) {
	log := logging.New("error", io.Discard)
	ex := exchange.NewPaperClient(0, 0)
	llmClient := &fakeLLM{err: assertErr{"timeout"}}
	c := New("BTC-USDT-SWAP", time.Second, types.DefaultTradingConfig(), llmClient, ex, log)

	adv := c.askLLM(context.Background(), []types.AgentReport{report("a", types.SignalBullish, 0.9)})
	assert.Equal(t, types.ActionHold, adv.Action)
	assert.Equal(t, 0.5, adv.Confidence)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
