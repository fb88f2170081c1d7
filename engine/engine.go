// Package engine implements the position lifecycle: scanning for
// opportunities, opening positions, managing exits, averaging down,
// reconciling against external balances, and sequencing it all once per
// cycle. The engine is single-threaded within a cycle and mutates one
// in-memory account snapshot that the caller persists.
package engine

import (
	"fmt"
	"time"

	"spotbot/broker"
	"spotbot/config"
	"spotbot/journal"
	"spotbot/tactic"
)

// Actor tags record who initiated an action in lifecycle tags and audit
// rows. The automated cycle and the manual control tool go through the same
// open/close code paths, differing only in this tag.
const (
	ActorAuto   = "auto"
	ActorManual = "manual"
)

// Deps are the engine's collaborators. Balances may be nil, which disables
// reconciliation (paper trading has no external account to drift from).
type Deps struct {
	Data     broker.MarketData
	Scorer   broker.Scorer
	Balances broker.Balances
	Exec     broker.Executor
	Notifier broker.Notifier
	Journal  journal.Journal

	// Now overrides the clock in tests.
	Now func() time.Time
}

type Engine struct {
	cfg      *config.Config
	catalog  *tactic.Catalog
	data     broker.MarketData
	scorer   broker.Scorer
	balances broker.Balances
	exec     broker.Executor
	notifier broker.Notifier
	journal  journal.Journal
	now      func() time.Time
}

func New(cfg *config.Config, deps Deps) (*Engine, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("build tactic catalog: %w", err)
	}
	if deps.Data == nil || deps.Scorer == nil || deps.Exec == nil {
		return nil, fmt.Errorf("engine requires market data, scorer and executor")
	}
	e := &Engine{
		cfg:      cfg,
		catalog:  catalog,
		data:     deps.Data,
		scorer:   deps.Scorer,
		balances: deps.Balances,
		exec:     deps.Exec,
		notifier: deps.Notifier,
		journal:  deps.Journal,
		now:      deps.Now,
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.journal == nil {
		e.journal = journal.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Rejection is a declined business action: not an error, logged at info.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// snapKey indexes the cycle-local snapshot cache.
type snapKey struct {
	symbol string
	tf     string
}
