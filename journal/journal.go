// Package journal records fully-closed positions and per-cycle equity
// snapshots in an append-only audit log. Every full closure is written
// exactly once, at closure time.
package journal

import (
	"time"

	"spotbot/market"
	"spotbot/zone"
)

// CloseRecord is one fully-closed position.
type CloseRecord struct {
	PositionID  string
	Symbol      string
	Timeframe   market.Timeframe
	Tactic      string
	EntryZone   zone.Zone
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	InvestedUSD float64
	RealizedUSD float64 // includes P&L booked by earlier partial closes
	Reason      string
	Actor       string // "auto" or "manual"
	OpenTime    time.Time
	CloseTime   time.Time
}

// EquitySnapshot is the account picture at the end of one cycle.
type EquitySnapshot struct {
	Time          time.Time
	CashUSD       float64
	InvestedUSD   float64
	EquityUSD     float64
	OpenPositions int
}

type Journal interface {
	RecordClose(CloseRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards all records; used by dry runs.
type Nop struct{}

func (Nop) RecordClose(CloseRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
