package broker

import (
	"context"
	"fmt"

	"spotbot/pkg/id"
)

// PriceSource supplies a current mark price for a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// QuotedExecutor fills market orders instantly at the price source's
// current quote. It is the live-data paper executor: positions track real
// prices while no exchange order is ever sent.
type QuotedExecutor struct {
	src PriceSource
}

func NewQuotedExecutor(src PriceSource) *QuotedExecutor {
	return &QuotedExecutor{src: src}
}

func (q *QuotedExecutor) PlaceMarketOrder(ctx context.Context, symbol string, side Side, size SizeSpec) (OrderFill, error) {
	price, err := q.src.LastPrice(ctx, symbol)
	if err != nil {
		return OrderFill{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if price <= 0 {
		return OrderFill{}, fmt.Errorf("quote %s: non-positive price %.8f", symbol, price)
	}

	var qty float64
	switch {
	case size.QuoteUSD > 0:
		qty = size.QuoteUSD / price
	case size.BaseQty > 0:
		qty = size.BaseQty
	default:
		return OrderFill{}, fmt.Errorf("empty size spec for %s", symbol)
	}

	return OrderFill{
		OrderID:   id.New(),
		FilledQty: qty,
		AvgPrice:  price,
		TotalCost: qty * price,
	}, nil
}
