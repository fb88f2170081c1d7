// Package broker declares the collaborator contracts the engine depends on:
// market data, opportunity scoring, balances, order execution, and
// notification. The engine only ever sees these interfaces; concrete
// implementations live in marketdata, score, and notify.
package broker

import (
	"context"

	"spotbot/market"
	"spotbot/tactic"
)

// MarketData supplies indicator snapshots. Implementations must return
// market.ErrInsufficientData (possibly wrapped) when history is too short,
// never a fabricated snapshot.
type MarketData interface {
	GetIndicators(ctx context.Context, symbol string, tf market.Timeframe) (market.Snapshot, error)
}

// Scorer converts an indicator snapshot into an opportunity score in [0,10],
// biased by the tactic's weight profile.
type Scorer interface {
	Score(ctx context.Context, snap market.Snapshot, weights tactic.WeightProfile) (float64, error)
}

// Balance is one asset's externally reported holding.
type Balance struct {
	Free   float64
	Locked float64
}

// Total returns free plus locked quantity.
func (b Balance) Total() float64 { return b.Free + b.Locked }

// Balances reports externally held quantities per asset.
type Balances interface {
	GetBalances(ctx context.Context) (map[string]Balance, error)
}

// Side is an order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// SizeSpec sizes a market order either by quote currency to spend (opens)
// or by base quantity to sell (closes). Exactly one field is set.
type SizeSpec struct {
	QuoteUSD float64
	BaseQty  float64
}

// OrderFill is the confirmed result of a market order.
type OrderFill struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
	TotalCost float64
}

// Executor places market orders. Implementations must be safe to retry on
// ambiguous failures (check before re-sending).
type Executor interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, size SizeSpec) (OrderFill, error)
}

// Notifier delivers operator messages. Fire and forget: failures are logged
// by the implementation, never returned to the engine's control flow.
type Notifier interface {
	Notify(text string)
}
