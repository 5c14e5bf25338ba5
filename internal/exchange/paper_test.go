package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/perpengine/internal/types"
)

func TestPaperClient_PlaceOrderOpensAndClosesPosition(t *testing.T) {
	p := NewPaperClient(100, 1000)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, "BTC-USDT-SWAP", SideOpenLong, 0.01)
	require.NoError(t, err)
	assert.Equal(t, "filled", order.Status)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, types.SideLong, positions[0].HoldSide)
	assert.Equal(t, 0.01, positions[0].Total)

	_, err = p.PlaceOrder(ctx, "BTC-USDT-SWAP", SideCloseLong, 0.01)
	require.NoError(t, err)

	positions, err = p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 0)
}

func TestPaperClient_SetPriceAffectsTicker(t *testing.T) {
	p := NewPaperClient(100, 1000)
	p.SetPrice(150)
	ticker, err := p.GetTicker(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 150.0, ticker.Last)
}
