// Package signal holds the pure indicator math and the SignalCombiner.
// Indicators are copied from well-known textbook definitions (the spec
// explicitly treats them as "pure functions... the implementer may copy
// from any reference", §1); RSI keeps the teacher's Wilder-smoothing shape
// from indicators.go, generalized to operate on types.Candle. ATR's
// rolling average uses gonum/stat, the numerics library aristath-sentinel
// pulls in for exactly this kind of rolling statistic.
package signal

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/chidi150c/perpengine/internal/types"
)

// closes extracts the Close series from a candle slice.
func closes(c []types.Candle) []float64 {
	out := make([]float64, len(c))
	for i, x := range c {
		out[i] = x.Close
	}
	return out
}

// SMA is the n-period simple moving average, aligned to c. NaN before the
// first full window.
func SMA(c []types.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Close
		if i >= n {
			sum -= c[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA is the n-period exponential moving average, seeded with the SMA of
// the first window.
func EMA(c []types.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	k := 2.0 / (float64(n) + 1)
	sma := SMA(c, n)
	for i := range c {
		switch {
		case i < n-1:
			out[i] = math.NaN()
		case i == n-1:
			out[i] = sma[i]
		default:
			out[i] = c[i].Close*k + out[i-1]*(1-k)
		}
	}
	return out
}

// RSI is the n-period Relative Strength Index using Wilder's smoothing,
// generalized from the teacher's indicators.go RSI to operate on Candle.
func RSI(c []types.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(c); i++ {
		d := c[i].Close - c[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				out[i] = rsiFromAvg(gain/float64(n), loss/float64(n))
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			out[i] = rsiFromAvg(gain, loss)
		}
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line, signal line, and histogram using the
// standard 12/26/9 periods.
func MACD(c []types.Candle) (line, signalLine, hist []float64) {
	fast := EMA(c, 12)
	slow := EMA(c, 26)
	line = make([]float64, len(c))
	for i := range c {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			line[i] = math.NaN()
			continue
		}
		line[i] = fast[i] - slow[i]
	}
	lineCandles := make([]types.Candle, len(line))
	for i, v := range line {
		if math.IsNaN(v) {
			v = 0
		}
		lineCandles[i] = types.Candle{Close: v}
	}
	signalLine = EMA(lineCandles, 9)
	hist = make([]float64, len(c))
	for i := range c {
		if math.IsNaN(line[i]) || math.IsNaN(signalLine[i]) {
			hist[i] = math.NaN()
			continue
		}
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// Bollinger returns the middle/upper/lower bands for an n-period SMA with
// a k standard-deviation envelope.
func Bollinger(c []types.Candle, n int, k float64) (mid, upper, lower []float64) {
	mid = SMA(c, n)
	upper = make([]float64, len(c))
	lower = make([]float64, len(c))
	for i := range c {
		if i < n-1 {
			upper[i], lower[i] = math.NaN(), math.NaN()
			continue
		}
		window := closes(c[i-n+1 : i+1])
		sd := stat.StdDev(window, nil)
		upper[i] = mid[i] + k*sd
		lower[i] = mid[i] - k*sd
	}
	return mid, upper, lower
}

// ATR is the n-period Average True Range. Uses gonum/stat.Mean for the
// rolling average of the true-range series, matching the rolling-statistic
// idiom the pack uses gonum for.
func ATR(c []types.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if len(c) == 0 {
		return out
	}
	tr := make([]float64, len(c))
	for i := range c {
		if i == 0 {
			tr[i] = c[i].High - c[i].Low
			continue
		}
		hl := c[i].High - c[i].Low
		hc := math.Abs(c[i].High - c[i-1].Close)
		lc := math.Abs(c[i].Low - c[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	for i := range c {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(tr[i-n+1:i+1], nil)
	}
	return out
}

// OBI is the order-book imbalance over the top levels provided, in [-1,1].
func OBI(d types.Depth) float64 {
	var bidSum, askSum float64
	for _, l := range d.Bids {
		bidSum += l.Qty
	}
	for _, l := range d.Asks {
		askSum += l.Qty
	}
	total := bidSum + askSum
	if total == 0 {
		return 0
	}
	return (bidSum - askSum) / total
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
