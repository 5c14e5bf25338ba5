package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/perpengine/internal/types"
)

func TestOBI_BalancedBookIsZero(t *testing.T) {
	d := types.Depth{
		Bids: []types.DepthLevel{{Price: 100, Qty: 5}},
		Asks: []types.DepthLevel{{Price: 101, Qty: 5}},
	}
	assert.Equal(t, 0.0, OBI(d))
}

func TestOBI_EmptyBookIsZero(t *testing.T) {
	assert.Equal(t, 0.0, OBI(types.Depth{}))
}

func TestOBI_BidHeavyIsPositive(t *testing.T) {
	d := types.Depth{
		Bids: []types.DepthLevel{{Price: 100, Qty: 9}},
		Asks: []types.DepthLevel{{Price: 101, Qty: 1}},
	}
	assert.InDelta(t, 0.8, OBI(d), 1e-9)
}

func TestPriceWindow_EvictsOldest(t *testing.T) {
	w := NewPriceWindow(3)
	w.Push(1)
	w.Push(2)
	w.Push(3)
	w.Push(4)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 4.0, w.Last())
	first, ok := w.At(2)
	assert.True(t, ok)
	assert.Equal(t, 2.0, first)
}

func TestCombine_EmptyDepthAndShortWindowIsZero(t *testing.T) {
	w := NewPriceWindow(10)
	w.Push(100)
	cfg := types.DefaultTradingConfig()
	assert.Equal(t, 0.0, Combine(w, types.Depth{}, cfg))
}

func TestCombine_NotRenormalizedAcrossChannels(t *testing.T) {
	w := NewPriceWindow(200)
	for i := 0; i < 25; i++ {
		w.Push(100 + float64(i))
	}
	depth := types.Depth{
		Bids: []types.DepthLevel{{Price: 124, Qty: 10}},
		Asks: []types.DepthLevel{{Price: 125, Qty: 0}},
	}
	cfg := types.DefaultTradingConfig()
	got := Combine(w, depth, cfg)
	// Every channel contributes at once and the result is their plain
	// weighted sum: OBI 1.0*0.25, RSI (100 on a strictly rising window)
	// -0.5*0.25, EMA deviation and momentum both saturate at +0.5*0.25,
	// giving 0.375.
	assert.Greater(t, got, 0.0)
	assert.InDelta(t, 0.375, got, 1e-9)
}

func TestRSI_FromFlatSeriesIsNeutral(t *testing.T) {
	candles := make([]types.Candle, 20)
	for i := range candles {
		candles[i] = types.Candle{Close: 100}
	}
	rsi := RSI(candles, 14)
	assert.InDelta(t, 50, rsi[len(rsi)-1], 1e-9)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	candles := []types.Candle{{Close: 1}, {Close: 2}, {Close: 3}}
	ema := EMA(candles, 3)
	sma := SMA(candles, 3)
	assert.Equal(t, sma[2], ema[2])
}
