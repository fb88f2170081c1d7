package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperExecutorQuoteSizing(t *testing.T) {
	t.Parallel()

	p := NewPaperExecutor()
	p.SetPrice("BTCUSDT", 50000)

	fill, err := p.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, SizeSpec{QuoteUSD: 650})
	require.NoError(t, err)

	assert.InDelta(t, 0.013, fill.FilledQty, 1e-9)
	assert.InDelta(t, 50000, fill.AvgPrice, 1e-9)
	assert.InDelta(t, 650, fill.TotalCost, 1e-9)
	assert.NotEmpty(t, fill.OrderID)
	assert.Len(t, p.Fills(), 1)
}

func TestPaperExecutorBaseSizing(t *testing.T) {
	t.Parallel()

	p := NewPaperExecutor()
	p.SetPrice("ETHUSDT", 2000)

	fill, err := p.PlaceMarketOrder(context.Background(), "ETHUSDT", Sell, SizeSpec{BaseQty: 1.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, fill.FilledQty, 1e-9)
	assert.InDelta(t, 3000, fill.TotalCost, 1e-9)
}

func TestPaperExecutorErrors(t *testing.T) {
	t.Parallel()

	p := NewPaperExecutor()

	_, err := p.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, SizeSpec{QuoteUSD: 100})
	assert.ErrorContains(t, err, "no mark price")

	p.SetPrice("BTCUSDT", 50000)
	_, err = p.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, SizeSpec{})
	assert.ErrorContains(t, err, "empty size spec")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PlaceMarketOrder(ctx, "BTCUSDT", Buy, SizeSpec{QuoteUSD: 100})
	assert.ErrorIs(t, err, context.Canceled)
}
