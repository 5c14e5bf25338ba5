package agent

import (
	"context"
	"errors"
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

func TestAgent_RunCycle_ParsesStrictJSON(t *testing.T) {
	ex := exchange.NewPaperClient(100, 1000)
	ex.SetPrice(100)
	llmClient := &fakeLLM{response: `{"signal":"bullish","confidence":0.8,"reasoning":"obi positive"}`}
	log := logging.New("error", io.Discard)

	a := New("a1", RoleMarket, "BTC-USDT-SWAP", time.Minute, ex, llmClient, log)
	report := a.runCycle(context.Background())

	assert.Equal(t, types.SignalBullish, report.Signal)
	assert.InDelta(t, 0.8, report.Confidence, 1e-9)
}

func TestAgent_RunCycle_LLMErrorDegradesToNeutral(t *testing.T) {
	ex := exchange.NewPaperClient(100, 1000)
	llmClient := &fakeLLM{err: errors.New("timeout")}
	log := logging.New("error", io.Discard)

	a := New("a1", RoleMarket, "BTC-USDT-SWAP", time.Minute, ex, llmClient, log)
	report := a.runCycle(context.Background())

	assert.Equal(t, types.SignalNeutral, report.Signal)
	assert.Equal(t, 0.5, report.Confidence)
}

func TestAgent_RunCycle_MalformedJSONDegradesToNeutral(t *testing.T) {
	ex := exchange.NewPaperClient(100, 1000)
	llmClient := &fakeLLM{response: "not json"}
	log := logging.New("error", io.Discard)

	a := New("a1", RoleMarket, "BTC-USDT-SWAP", time.Minute, ex, llmClient, log)
	report := a.runCycle(context.Background())

	assert.Equal(t, types.SignalNeutral, report.Signal)
}

func TestAgent_RunCycle_GatherErrorDegradesToNeutral(t *testing.T) {
	ex := exchange.NewPaperClient(100, 1000) // has no candle history
	llmClient := &fakeLLM{response: `{"signal":"bullish","confidence":0.9}`}
	log := logging.New("error", io.Discard)

	a := New("a1", RoleTechnical, "BTC-USDT-SWAP", time.Minute, ex, llmClient, log)
	report := a.runCycle(context.Background())

	assert.Equal(t, types.SignalNeutral, report.Signal)
}

func TestAgent_LatestReport_NilBeforeFirstCycle(t *testing.T) {
	ex := exchange.NewPaperClient(100, 1000)
	llmClient := &fakeLLM{response: `{"signal":"neutral","confidence":0.5}`}
	log := logging.New("error", io.Discard)

	a := New("a1", RoleMarket, "BTC-USDT-SWAP", time.Minute, ex, llmClient, log)
	require.Nil(t, a.LatestReport())
}
