package state

import (
	"fmt"
	"strings"
	"time"

	"spotbot/market"
	"spotbot/zone"
)

// StatusActive marks an open position. Closed positions carry
// "CLOSED:<reason>".
const StatusActive = "ACTIVE"

const closedPrefix = "CLOSED:"

// DCAEntry is one capital tranche added to a position, including the
// opening tranche.
type DCAEntry struct {
	Price float64   `json:"price"`
	USD   float64   `json:"usd"`
	Time  time.Time `json:"time"`
}

// Position is a single long spot trade, open or closed. The account state
// owns every Position; nothing else retains one across cycles.
type Position struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	Status    string           `json:"status"`
	Tactic    string           `json:"tactic"`

	EntryPrice  float64 `json:"entry_price"` // capital-weighted average across tranches
	Quantity    float64 `json:"quantity"`
	InvestedUSD float64 `json:"invested_usd"`

	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	// InitialStop is frozen at open; risk-multiple math and DCA stop
	// recomputation always use the original risk distance.
	InitialStop float64 `json:"initial_stop"`

	Entries []DCAEntry `json:"entries"`

	RealizedUSD   float64 `json:"realized_usd"` // booked by partial closes while still open
	PeakProfitPct float64 `json:"peak_profit_pct"`

	EntryScore float64 `json:"entry_score"`
	LastScore  float64 `json:"last_score"`

	EntryZone zone.Zone `json:"entry_zone"`
	LastZone  zone.Zone `json:"last_zone"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`

	ExitPrice float64 `json:"exit_price,omitempty"`

	TP1Hit              bool `json:"tp1_hit"`
	ProtectionTriggered bool `json:"protection_triggered"`
	ScorePartialTaken   bool `json:"score_partial_taken"`
	TrailingActive      bool `json:"trailing_active"`

	// StaleExtendedUntil suppresses staleness eviction until it passes.
	// Set out-of-band by the manual control tool.
	StaleExtendedUntil time.Time `json:"stale_extended_until,omitempty"`

	LastDCAAt time.Time `json:"last_dca_at,omitempty"`

	// Tags is the human-readable lifecycle history.
	Tags []string `json:"tags,omitempty"`
}

// Active reports whether the position is still open.
func (p *Position) Active() bool { return p.Status == StatusActive }

// CloseReason extracts the reason from a closed status, or "" while active.
func (p *Position) CloseReason() string {
	return strings.TrimPrefix(p.Status, closedPrefix)
}

// MarkClosed stamps the closed status for the given reason.
func (p *Position) MarkClosed(reason string) {
	p.Status = closedPrefix + reason
}

// RiskDistance is the frozen entry-to-initial-stop distance used for
// risk-multiple calculations.
func (p *Position) RiskDistance() float64 {
	if len(p.Entries) == 0 {
		return p.EntryPrice - p.InitialStop
	}
	// the original tranche defines the unit of risk
	return p.Entries[0].Price - p.InitialStop
}

// RiskMultiple returns the favorable movement at price in R units.
func (p *Position) RiskMultiple(price float64) float64 {
	rd := p.RiskDistance()
	if rd <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / rd
}

// UnrealizedPct returns the unrealized profit fraction at price.
func (p *Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// LastEntryPrice is the price of the most recent tranche.
func (p *Position) LastEntryPrice() float64 {
	if len(p.Entries) == 0 {
		return p.EntryPrice
	}
	return p.Entries[len(p.Entries)-1].Price
}

// RecomputeFromEntries rebuilds the weighted average entry, quantity and
// invested capital from the tranche list, keeping qty*avg == invested.
func (p *Position) RecomputeFromEntries() {
	var usd, qty float64
	for _, e := range p.Entries {
		if e.Price <= 0 {
			continue
		}
		usd += e.USD
		qty += e.USD / e.Price
	}
	if qty <= 0 {
		return
	}
	p.InvestedUSD = usd
	p.Quantity = qty
	p.EntryPrice = usd / qty
}

// ApplyPartialClose reduces the position by fraction at the given price and
// returns the cash to credit (returned capital plus P&L on the closed
// fraction). The realized P&L is also booked on the position. The position
// stays ACTIVE.
func (p *Position) ApplyPartialClose(fraction, price float64) float64 {
	closedQty := p.Quantity * fraction
	closedUSD := p.InvestedUSD * fraction
	pnl := closedQty*price - closedUSD

	p.Quantity -= closedQty
	p.InvestedUSD -= closedUSD
	p.RealizedUSD += pnl

	// shrink tranches proportionally so the invariant survives later DCA
	for i := range p.Entries {
		p.Entries[i].USD *= 1 - fraction
	}

	return closedUSD + pnl
}

// BreakEven moves the stop to the average entry, never downward.
func (p *Position) BreakEven() {
	if p.EntryPrice > p.StopLoss {
		p.StopLoss = p.EntryPrice
	}
}

// Tag appends a timestamped lifecycle note.
func (p *Position) Tag(now time.Time, format string, args ...any) {
	note := fmt.Sprintf(format, args...)
	p.Tags = append(p.Tags, fmt.Sprintf("%s %s", now.UTC().Format(time.RFC3339), note))
}

// Validate checks the structural invariants of a loaded position.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position without id")
	}
	if p.Symbol == "" {
		return fmt.Errorf("position %s: symbol is required", p.ID)
	}
	if p.Status != StatusActive && !strings.HasPrefix(p.Status, closedPrefix) {
		return fmt.Errorf("position %s: unknown status %q", p.ID, p.Status)
	}
	if p.Active() {
		if p.EntryPrice <= 0 || p.Quantity <= 0 || p.InvestedUSD <= 0 {
			return fmt.Errorf("position %s: non-positive size", p.ID)
		}
		// sl < entry < tp holds at open; break-even and trailing may
		// later lift the stop to or above entry, never past the target.
		if p.StopLoss <= 0 || p.TakeProfit <= p.StopLoss {
			return fmt.Errorf("position %s: requires 0 < sl < tp", p.ID)
		}
		if p.TakeProfit <= p.EntryPrice {
			return fmt.Errorf("position %s: tp must exceed entry", p.ID)
		}
	}
	return nil
}
