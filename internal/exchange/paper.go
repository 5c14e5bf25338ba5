// PaperClient simulates execution against the latest known price, in the
// spirit of the teacher's broker_paper.go: no external calls, used for
// DryRun mode and tests.
package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chidi150c/perpengine/internal/types"
	"github.com/google/uuid"
)

type PaperClient struct {
	mu       sync.Mutex
	price    float64
	equity   float64
	position map[string]ExchangePosition
}

func NewPaperClient(startPrice, startEquity float64) *PaperClient {
	return &PaperClient{price: startPrice, equity: startEquity, position: map[string]ExchangePosition{}}
}

// SetPrice lets a test or the market-data feed drive the simulated mark.
func (p *PaperClient) SetPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
}

func (p *PaperClient) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Ticker{Last: p.price, Bid: p.price, Ask: p.price}, nil
}

func (p *PaperClient) GetDepth(ctx context.Context, symbol string) (types.Depth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.Depth{
		Bids: []types.DepthLevel{{Price: p.price * 0.999, Qty: 1}},
		Asks: []types.DepthLevel{{Price: p.price * 1.001, Qty: 1}},
	}, nil
}

func (p *PaperClient) GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]types.Candle, error) {
	return nil, errors.New("paper client has no candle history")
}

func (p *PaperClient) GetFundingRate(ctx context.Context, symbol string) (Funding, error) {
	return Funding{}, nil
}

func (p *PaperClient) GetAssets(ctx context.Context) ([]Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []Asset{{CoinName: "USDT", Equity: p.equity, Available: p.equity}}, nil
}

func (p *PaperClient) GetPositions(ctx context.Context) ([]ExchangePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExchangePosition, 0, len(p.position))
	for _, pos := range p.position {
		out = append(out, pos)
	}
	return out, nil
}

func (p *PaperClient) GetOrderHistory(ctx context.Context, symbol string) ([]Order, error) {
	return nil, nil
}

func (p *PaperClient) PlaceOrder(ctx context.Context, symbol string, side SideCode, size float64) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch side {
	case SideOpenLong:
		p.position[symbol] = ExchangePosition{Symbol: symbol, HoldSide: types.SideLong, Total: size, AverageOpenPrice: p.price}
	case SideOpenShort:
		p.position[symbol] = ExchangePosition{Symbol: symbol, HoldSide: types.SideShort, Total: size, AverageOpenPrice: p.price}
	case SideCloseLong, SideCloseShort:
		delete(p.position, symbol)
	}
	return &Order{ID: uuid.New().String(), Symbol: symbol, Side: side, Size: size, Price: p.price, Timestamp: time.Now().UTC(), Status: "filled"}, nil
}

func (p *PaperClient) UploadAILog(ctx context.Context, entry AILogEntry) error { return nil }
