package broker

import (
	"context"
	"fmt"
	"sync"

	"spotbot/pkg/id"
)

// PaperExecutor fills orders instantly at the caller-maintained mark price.
// It backs dry runs and tests; there is no book, no slippage, no fees.
type PaperExecutor struct {
	mu     sync.Mutex
	prices map[string]float64
	fills  []OrderFill
}

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{prices: make(map[string]float64)}
}

// SetPrice sets the mark price used to fill orders for a symbol.
func (p *PaperExecutor) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Fills returns all fills recorded so far.
func (p *PaperExecutor) Fills() []OrderFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderFill, len(p.fills))
	copy(out, p.fills)
	return out
}

func (p *PaperExecutor) PlaceMarketOrder(ctx context.Context, symbol string, side Side, size SizeSpec) (OrderFill, error) {
	if err := ctx.Err(); err != nil {
		return OrderFill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return OrderFill{}, fmt.Errorf("paper executor: no mark price for %s", symbol)
	}

	var qty float64
	switch {
	case size.QuoteUSD > 0:
		qty = size.QuoteUSD / price
	case size.BaseQty > 0:
		qty = size.BaseQty
	default:
		return OrderFill{}, fmt.Errorf("paper executor: empty size spec for %s", symbol)
	}

	fill := OrderFill{
		OrderID:   id.New(),
		FilledQty: qty,
		AvgPrice:  price,
		TotalCost: qty * price,
	}
	p.fills = append(p.fills, fill)
	return fill, nil
}
