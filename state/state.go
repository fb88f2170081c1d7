// Package state owns the durable account document: cash, open positions,
// closed history, and per-symbol cooldowns. It is loaded once per cycle,
// mutated in memory, and atomically rewritten.
package state

import (
	"fmt"
	"time"
)

// SchemaVersion is stamped into every saved document. Loading an older
// version runs the migration path; loading a newer one fails.
const SchemaVersion = 1

// Account is the process-wide persisted structure.
type Account struct {
	SchemaVersion int     `json:"schema_version"`
	CashUSD       float64 `json:"cash_usd"`

	Positions []*Position `json:"positions"`
	History   []*Position `json:"history"`

	// Cooldowns maps symbol to the time trading may resume.
	Cooldowns map[string]time.Time `json:"cooldowns"`

	// LastAlerts throttles repeated notifications per symbol.
	LastAlerts map[string]time.Time `json:"last_alerts"`

	// LastReportAt throttles the cycle-end summary notification.
	LastReportAt time.Time `json:"last_report_at,omitempty"`
}

// NewAccount creates the first-run account with the configured capital.
func NewAccount(initialUSD float64) *Account {
	return &Account{
		SchemaVersion: SchemaVersion,
		CashUSD:       initialUSD,
		Cooldowns:     make(map[string]time.Time),
		LastAlerts:    make(map[string]time.Time),
	}
}

// ActiveBySymbol returns the open position for symbol, if any.
func (a *Account) ActiveBySymbol(symbol string) *Position {
	for _, p := range a.Positions {
		if p.Active() && p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// FindPosition looks an open position up by id.
func (a *Account) FindPosition(id string) *Position {
	for _, p := range a.Positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// TotalInvested sums invested capital across open positions, skipping any
// the caller has excluded (desynchronized positions during reconciliation).
func (a *Account) TotalInvested(excluded map[string]bool) float64 {
	var sum float64
	for _, p := range a.Positions {
		if !p.Active() || excluded[p.ID] {
			continue
		}
		sum += p.InvestedUSD
	}
	return sum
}

// Equity is cash plus invested capital at cost. Unrealized P&L is a derived
// quantity and deliberately not part of equity here.
func (a *Account) Equity(excluded map[string]bool) float64 {
	return a.CashUSD + a.TotalInvested(excluded)
}

// OnCooldown reports whether symbol is still cooling down at now.
func (a *Account) OnCooldown(symbol string, now time.Time) bool {
	until, ok := a.Cooldowns[symbol]
	return ok && now.Before(until)
}

// SetCooldown stamps a cooldown expiry for symbol.
func (a *Account) SetCooldown(symbol string, until time.Time) {
	if a.Cooldowns == nil {
		a.Cooldowns = make(map[string]time.Time)
	}
	a.Cooldowns[symbol] = until
}

// Retire moves a closed position from the open list into bounded history,
// dropping the oldest entry when the bound is exceeded.
func (a *Account) Retire(pos *Position, historyLimit int) {
	for i, p := range a.Positions {
		if p.ID == pos.ID {
			a.Positions = append(a.Positions[:i], a.Positions[i+1:]...)
			break
		}
	}
	a.History = append(a.History, pos)
	if historyLimit > 0 && len(a.History) > historyLimit {
		a.History = a.History[len(a.History)-historyLimit:]
	}
}

// Validate checks the loaded document's shape. A broken document is fatal
// for the run: the engine must not trade on unknown state.
func (a *Account) Validate() error {
	if a.SchemaVersion > SchemaVersion {
		return fmt.Errorf("state schema v%d is newer than supported v%d", a.SchemaVersion, SchemaVersion)
	}
	if a.CashUSD < 0 {
		return fmt.Errorf("negative cash balance %.2f", a.CashUSD)
	}
	seen := map[string]bool{}
	for _, p := range a.Positions {
		if err := p.Validate(); err != nil {
			return err
		}
		if !p.Active() {
			return fmt.Errorf("position %s: closed position in open list", p.ID)
		}
		if seen[p.Symbol] {
			return fmt.Errorf("two open positions for %s", p.Symbol)
		}
		seen[p.Symbol] = true
	}
	return nil
}

// migrate applies defaults for fields older documents may lack and stamps
// the current schema version. Hand-edited documents with missing optional
// maps go through here too.
func (a *Account) migrate() {
	if a.Cooldowns == nil {
		a.Cooldowns = make(map[string]time.Time)
	}
	if a.LastAlerts == nil {
		a.LastAlerts = make(map[string]time.Time)
	}
	for _, p := range a.Positions {
		if p.Status == "" {
			p.Status = StatusActive
		}
		if len(p.Entries) == 0 && p.EntryPrice > 0 && p.InvestedUSD > 0 {
			p.Entries = []DCAEntry{{Price: p.EntryPrice, USD: p.InvestedUSD, Time: p.OpenedAt}}
		}
		if p.InitialStop == 0 {
			p.InitialStop = p.StopLoss
		}
	}
	a.SchemaVersion = SchemaVersion
}
