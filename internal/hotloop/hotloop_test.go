package hotloop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/signal"
	"github.com/chidi150c/perpengine/internal/types"
)

func TestBiasStrength_SignedByAction(t *testing.T) {
	assert.Equal(t, 0.8, biasStrength(&types.Advisory{Action: types.ActionLong, Confidence: 0.8}))
	assert.Equal(t, -0.8, biasStrength(&types.Advisory{Action: types.ActionShort, Confidence: 0.8}))
	assert.Equal(t, 0.0, biasStrength(&types.Advisory{Action: types.ActionHold, Confidence: 0.8}))
}

func TestThresholdConfirmed_RespectsThreshold(t *testing.T) {
	assert.True(t, thresholdConfirmed(0.3, 0.2))
	assert.True(t, thresholdConfirmed(-0.3, 0.2))
	assert.False(t, thresholdConfirmed(0.1, 0.2))
}

func TestThresholdConfirmed_BoundaryIsInclusive(t *testing.T) {
	assert.True(t, thresholdConfirmed(0.2, 0.2))
	assert.True(t, thresholdConfirmed(-0.2, 0.2))
}

func TestLocalConfirmation_CloseAlwaysConfirmed(t *testing.T) {
	assert.True(t, localConfirmation(types.ActionClose, 0.0, signal.NewPriceWindow(200)))
}

func TestLocalConfirmation_HighConfidenceBypassesRSI(t *testing.T) {
	assert.True(t, localConfirmation(types.ActionLong, 0.8, signal.NewPriceWindow(200)))
	assert.True(t, localConfirmation(types.ActionShort, 0.8, signal.NewPriceWindow(200)))
}

func TestLocalConfirmation_LongRejectedWhenOverbought(t *testing.T) {
	pw := signal.NewPriceWindow(200)
	price := 100.0
	for i := 0; i < 20; i++ {
		price += 1
		pw.Push(price)
	}
	assert.False(t, localConfirmation(types.ActionLong, 0.5, pw))
}

func TestLocalConfirmation_ShortRejectedWhenOversold(t *testing.T) {
	pw := signal.NewPriceWindow(200)
	price := 100.0
	for i := 0; i < 20; i++ {
		price -= 1
		pw.Push(price)
	}
	assert.False(t, localConfirmation(types.ActionShort, 0.5, pw))
}

func TestLocalConfirmation_HoldNeverConfirmed(t *testing.T) {
	assert.False(t, localConfirmation(types.ActionHold, 0.9, signal.NewPriceWindow(200)))
}

func TestDirectionFromSignal_RequiresSignalAndAdvisoryAgreement(t *testing.T) {
	long := &types.Advisory{Action: types.ActionLong}
	short := &types.Advisory{Action: types.ActionShort}

	assert.Equal(t, types.ActionLong, directionFromSignal(0.5, long))
	assert.Equal(t, types.ActionHold, directionFromSignal(-0.5, long))
	assert.Equal(t, types.ActionShort, directionFromSignal(-0.5, short))
	assert.Equal(t, types.ActionHold, directionFromSignal(0.5, short))
}

func TestDirectionFromSignal_CloseAlwaysWins(t *testing.T) {
	close := &types.Advisory{Action: types.ActionClose}
	assert.Equal(t, types.ActionClose, directionFromSignal(0.9, close))
	assert.Equal(t, types.ActionClose, directionFromSignal(-0.9, close))
}

func TestSizeFromRisk_ClampedToMax(t *testing.T) {
	cfg := types.DefaultTradingConfig()
	cfg.RiskPerTrade = 0.5
	cfg.MaxPositionSize = 0.01

	size := sizeFromRisk(cfg, 1000, 100) // unclamped would be 5.0
	assert.Equal(t, 0.01, size)
}

func TestSizeFromRisk_ZeroPriceIsZeroSize(t *testing.T) {
	cfg := types.DefaultTradingConfig()
	assert.Equal(t, 0.0, sizeFromRisk(cfg, 1000, 0))
}

func TestSideCodeLabel_CoversAllCodes(t *testing.T) {
	assert.Equal(t, "open_long", sideCodeLabel(exchange.SideOpenLong))
	assert.Equal(t, "close_short", sideCodeLabel(exchange.SideCloseShort))
	assert.Equal(t, "open_short", sideCodeLabel(exchange.SideOpenShort))
	assert.Equal(t, "close_long", sideCodeLabel(exchange.SideCloseLong))
}

func TestOrderID_NilOrderIsEmptyString(t *testing.T) {
	assert.Equal(t, "", orderID(nil))
	assert.Equal(t, "abc", orderID(&exchange.Order{ID: "abc"}))
}
