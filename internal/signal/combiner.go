package signal

import (
	"math"

	"github.com/chidi150c/perpengine/internal/types"
)

// PriceWindow is the bounded, owner-only price history a single HotLoop
// maintains per symbol (§3: exclusively owned by its HotLoop, oldest
// evicted on overflow).
type PriceWindow struct {
	size   int
	prices []float64
}

// NewPriceWindow builds a window retaining at most size prices.
func NewPriceWindow(size int) *PriceWindow {
	if size <= 0 {
		size = 100
	}
	return &PriceWindow{size: size}
}

// Push appends a price, evicting the oldest if the window is full.
func (w *PriceWindow) Push(price float64) {
	w.prices = append(w.prices, price)
	if len(w.prices) > w.size {
		w.prices = w.prices[len(w.prices)-w.size:]
	}
}

// Len reports the current number of retained prices (<= size).
func (w *PriceWindow) Len() int { return len(w.prices) }

// Candles renders the window as a minimal candle slice (Close only) so it
// can feed the indicator functions, which operate on types.Candle.
func (w *PriceWindow) Candles() []types.Candle {
	out := make([]types.Candle, len(w.prices))
	for i, p := range w.prices {
		out[i] = types.Candle{Close: p, High: p, Low: p, Open: p}
	}
	return out
}

// Last returns the most recent price, or 0 if empty.
func (w *PriceWindow) Last() float64 {
	if len(w.prices) == 0 {
		return 0
	}
	return w.prices[len(w.prices)-1]
}

// At returns the price n steps back from the most recent (0 = last), or
// (0, false) if unavailable.
func (w *PriceWindow) At(n int) (float64, bool) {
	idx := len(w.prices) - 1 - n
	if idx < 0 || idx >= len(w.prices) {
		return 0, false
	}
	return w.prices[idx], true
}

// Combine is the pure SignalCombiner (§4.4): a weighted sum of four bounded
// per-channel contributions. Deterministic, side-effect free, no I/O. The
// result is not re-normalized and may exceed [-1,1] (bounded by [-2,2]
// given each channel's own clamp).
func Combine(pw *PriceWindow, depth types.Depth, cfg types.TradingConfig) float64 {
	candles := pw.Candles()
	var total float64

	// OBI channel
	total += OBI(depth) * cfg.WeightOBI

	// RSI channel
	if pw.Len() >= 15 {
		rsi := RSI(candles, 14)
		r := rsi[len(rsi)-1]
		switch {
		case r < 30:
			total += 0.5 * cfg.WeightRSI
		case r > 70:
			total += -0.5 * cfg.WeightRSI
		}
	}

	// EMA deviation channel
	if pw.Len() >= 20 {
		ema := EMA(candles, 20)
		e := ema[len(ema)-1]
		if e != 0 && !math.IsNaN(e) {
			dev := (pw.Last() - e) / e
			total += clamp(dev*10, -0.5, 0.5) * cfg.WeightEMA
		}
	}

	// Momentum channel
	if prev, ok := pw.At(10); ok && prev != 0 {
		mom := (pw.Last() - prev) / prev
		total += clamp(mom*20, -0.5, 0.5) * cfg.WeightMomentum
	}

	return total
}
