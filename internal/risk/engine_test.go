package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxDailyLossPct: 0.05,
		MinEquity:       100,
		MaxDrawdownPct:  0.10,
		MaxPositionSize: 1.0,
	}
}

func TestEngine_StartsArmed(t *testing.T) {
	e := New("BTC-USDT-SWAP", 1000, testLimits())
	defer e.Stop()
	require.False(t, e.Status().Tripped)
	assert.True(t, e.CanTrade(0.1))
}

func TestEngine_DrawdownTripsBreaker(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyLossPct = 1.0 // keep the daily-loss rule out of the way so only drawdown can trip
	e := New("BTC-USDT-SWAP", 1000, limits)
	defer e.Stop()

	peak := 1000.0
	e.UpdateState(Partial{Equity: &peak})
	require.False(t, e.Status().Tripped)

	dropped := 880.0 // 12% drawdown from the 1000 peak, exceeds the 10% limit
	e.UpdateState(Partial{Equity: &dropped})

	status := e.Status()
	assert.True(t, status.Tripped)
	assert.Contains(t, status.TripReason, "drawdown")
	assert.False(t, e.CanTrade(0.01))
}

func TestEngine_ResetUnlatches(t *testing.T) {
	e := New("BTC-USDT-SWAP", 1000, testLimits())
	defer e.Stop()

	dropped := 40.0 // below MinEquity
	e.UpdateState(Partial{Equity: &dropped})
	require.True(t, e.Status().Tripped)

	e.Reset()
	assert.False(t, e.Status().Tripped)
}

func TestEngine_CanTrade_RejectsOversizePosition(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSize = 0.05
	e := New("BTC-USDT-SWAP", 1000, limits)
	defer e.Stop()

	assert.True(t, e.CanTrade(0.04))
	assert.False(t, e.CanTrade(0.06))
}

func TestEngine_PeakEquityNeverDecreases(t *testing.T) {
	e := New("BTC-USDT-SWAP", 1000, testLimits())
	defer e.Stop()

	up := 1200.0
	e.UpdateState(Partial{Equity: &up})
	assert.Equal(t, 1200.0, e.Status().PeakEquity)

	down := 1100.0
	e.UpdateState(Partial{Equity: &down})
	assert.Equal(t, 1200.0, e.Status().PeakEquity)
}

func TestEngine_DailyLossTripsBreaker(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyLossPct = 0.05
	e := New("BTC-USDT-SWAP", 1000, limits)
	defer e.Stop()

	lossy := 940.0 // 6% daily loss, exceeds 5% limit
	e.UpdateState(Partial{Equity: &lossy})
	assert.True(t, e.Status().Tripped)
}
