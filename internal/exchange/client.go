// Package exchange defines the ExchangeClient collaborator interface (§6 of
// the spec: a thin wrapper over REST/WebSocket, specified only at the
// interface) plus one concrete HMAC-signed REST implementation and a paper
// implementation used for dry runs and tests. Generalizes the teacher's
// binance_broker.go signing path and broker_paper.go simulation.
package exchange

import (
	"context"
	"time"

	"github.com/chidi150c/perpengine/internal/types"
)

// SideCode is the venue-specific integer intent code (§4.5/§9): a pure
// function of (direction, current position), never computed ad-hoc.
type SideCode int

const (
	SideOpenLong   SideCode = 1
	SideCloseShort SideCode = 2
	SideOpenShort  SideCode = 3
	SideCloseLong  SideCode = 4
)

// Ticker is the parsed response of GetTicker.
type Ticker struct {
	Last      float64
	Bid       float64
	Ask       float64
	Vol       float64
	Change24h float64
}

// Funding is the parsed response of GetFundingRate.
type Funding struct {
	FundingRate     float64
	NextFundingTime time.Time
}

// Asset is one balance line from GetAssets.
type Asset struct {
	CoinName  string
	Equity    float64
	Available float64
	Frozen    float64
}

// ExchangePosition is one open position line from GetPositions.
type ExchangePosition struct {
	Symbol          string
	HoldSide        types.PositionSide
	Total           float64
	AverageOpenPrice float64
	UnrealizedPL    float64
}

// Order is one historical order line from GetOrderHistory.
type Order struct {
	ID        string
	Symbol    string
	Side      SideCode
	Size      float64
	Price     float64
	Timestamp time.Time
	Status    string
}

// AILogEntry is the audit payload for UploadAILog: a fire-and-forget sink
// whose failure must never block trading.
type AILogEntry struct {
	Stage       string
	Model       string
	Input       string
	Output      string
	Explanation string
}

// Client is the minimal surface the hot loop, agents, and risk-reconciler
// need from the exchange. Every method carries the caller's context so the
// caller can cancel it; RESTClient additionally bounds every call with its
// own 30s HTTP timeout.
type Client interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetDepth(ctx context.Context, symbol string) (types.Depth, error)
	GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]types.Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (Funding, error)
	GetAssets(ctx context.Context) ([]Asset, error)
	GetPositions(ctx context.Context) ([]ExchangePosition, error)
	GetOrderHistory(ctx context.Context, symbol string) ([]Order, error)
	PlaceOrder(ctx context.Context, symbol string, side SideCode, size float64) (*Order, error)
	UploadAILog(ctx context.Context, entry AILogEntry) error
}

// ResolveSideCode is the declared 9-case mapping (3 directions x 3 position
// sides) from (intended direction,
// current position side) to the venue's integer code (§9). Direction "close"
// from flat is a documented no-op (returns ok=false).
func ResolveSideCode(direction types.AdvisoryAction, current types.PositionSide) (code SideCode, ok bool) {
	type key struct {
		dir types.AdvisoryAction
		pos types.PositionSide
	}
	table := map[key]SideCode{
		{types.ActionLong, types.SideFlat}:  SideOpenLong,
		{types.ActionLong, types.SideShort}: SideCloseShort,
		{types.ActionLong, types.SideLong}:  0, // already long; no order (handled by caller as no-op)
		{types.ActionShort, types.SideFlat}: SideOpenShort,
		{types.ActionShort, types.SideLong}: SideCloseLong,
		{types.ActionShort, types.SideShort}: 0, // already short
		{types.ActionClose, types.SideLong}:  SideCloseLong,
		{types.ActionClose, types.SideShort}: SideCloseShort,
		{types.ActionClose, types.SideFlat}:  0, // no-op
	}
	c, found := table[key{direction, current}]
	if !found || c == 0 {
		return 0, false
	}
	return c, true
}
