package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"spotbot/journal"
	"spotbot/market"
	"spotbot/state"
)

// Report summarizes one cycle for logging and the CLI.
type Report struct {
	Started       time.Time
	SnapshotsOK   int
	SnapshotsFail int
	Desynced      []string
	Opened        string
	CashUSD       float64
	InvestedUSD   float64
	EquityUSD     float64
	OpenPositions int
}

// Cycle executes one full engine pass against the store: load (or seed)
// state, manage open positions, reconcile, scan and open at most one new
// position, persist. The caller holds the state lock for the whole call.
//
// A corrupt or unreadable state document is fatal and notified; every other
// failure is contained to the symbol or position it affects.
func (e *Engine) Cycle(ctx context.Context, store *state.Store, dryRun bool) (*Report, error) {
	acct, err := store.Load()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		acct = state.NewAccount(e.cfg.Account.InitialBalanceUSD)
		log.Info().Float64("initial_usd", e.cfg.Account.InitialBalanceUSD).
			Msg("first run, seeded new account state")
	default:
		e.notifier.Notify(fmt.Sprintf("FATAL: state unreadable, trading halted: %v", err))
		return nil, fmt.Errorf("load state: %w", err)
	}

	report := e.run(ctx, acct)

	if dryRun {
		log.Info().Msg("dry run: state not persisted")
		return report, nil
	}

	if err := store.Save(acct); err != nil {
		e.notifier.Notify(fmt.Sprintf("FATAL: state save failed: %v", err))
		return report, fmt.Errorf("save state: %w", err)
	}

	if err := e.journal.RecordEquity(journal.EquitySnapshot{
		Time:          e.now().UTC(),
		CashUSD:       report.CashUSD,
		InvestedUSD:   report.InvestedUSD,
		EquityUSD:     report.EquityUSD,
		OpenPositions: report.OpenPositions,
	}); err != nil {
		log.Error().Err(err).Msg("equity journal write failed")
	}
	return report, nil
}

// run mutates the in-memory account through the full pipeline. Split from
// Cycle so tests can drive an account directly.
func (e *Engine) run(ctx context.Context, acct *state.Account) *Report {
	report := &Report{Started: e.now().UTC()}

	snaps := e.collectSnapshots(ctx, acct, report)

	// Reconciliation runs before management so desynchronized positions
	// are excluded from this cycle's rules and exposure totals. The
	// overview-level ordering (manage, then reconcile) cannot honor that
	// exclusion, so the exclusion semantics win.
	desynced := e.reconcile(ctx, acct)
	for id := range desynced {
		report.Desynced = append(report.Desynced, id)
	}

	e.managePositions(ctx, acct, snaps, desynced)

	if c := e.scan(ctx, acct, snaps); c != nil {
		_, rej, err := e.OpenPosition(ctx, acct, *c, ActorAuto, desynced)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("symbol", c.Symbol).Msg("open failed")
		case rej != nil:
			log.Info().Str("symbol", c.Symbol).Str("code", rej.Code).
				Str("reason", rej.Reason).Msg("open declined")
		default:
			report.Opened = c.Symbol
		}
	}

	report.CashUSD = acct.CashUSD
	report.InvestedUSD = acct.TotalInvested(desynced)
	report.EquityUSD = acct.Equity(desynced)
	for _, p := range acct.Positions {
		if p.Active() {
			report.OpenPositions++
		}
	}

	e.sendSummary(acct, report)
	return report
}

// summaryEvery spaces the cycle-end summary notifications.
const summaryEvery = 24 * time.Hour

func (e *Engine) sendSummary(acct *state.Account, report *Report) {
	now := e.now().UTC()
	if !acct.LastReportAt.IsZero() && now.Sub(acct.LastReportAt) < summaryEvery {
		return
	}
	acct.LastReportAt = now
	e.notifier.Notify(fmt.Sprintf(
		"Daily summary: equity $%.2f (cash $%.2f, invested $%.2f), %d open positions",
		report.EquityUSD, report.CashUSD, report.InvestedUSD, report.OpenPositions))
}

// collectSnapshots fetches indicators for every (symbol, timeframe) the
// cycle needs: the scan universe plus any open position's context that
// falls outside it. Per-symbol failures are logged and skipped; they must
// never abort the cycle.
func (e *Engine) collectSnapshots(ctx context.Context, acct *state.Account, report *Report) map[snapKey]market.Snapshot {
	keys := make([]snapKey, 0, len(e.cfg.Universe.Symbols)*len(e.cfg.Universe.Timeframes))
	seen := map[snapKey]bool{}
	add := func(k snapKey) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, s := range e.cfg.Universe.Symbols {
		for _, tf := range e.cfg.Universe.Timeframes {
			add(snapKey{s, string(tf)})
		}
	}
	for _, p := range acct.Positions {
		if p.Active() {
			add(snapKey{p.Symbol, string(p.Timeframe)})
		}
	}

	snaps := make(map[snapKey]market.Snapshot, len(keys))
	for _, k := range keys {
		snap, err := e.data.GetIndicators(ctx, k.symbol, market.Timeframe(k.tf))
		if err != nil {
			report.SnapshotsFail++
			if errors.Is(err, market.ErrInsufficientData) {
				log.Debug().Str("symbol", k.symbol).Str("timeframe", k.tf).
					Msg("insufficient history, skipped")
			} else {
				log.Warn().Err(err).Str("symbol", k.symbol).Str("timeframe", k.tf).
					Msg("indicator fetch failed, symbol skipped this cycle")
			}
			continue
		}
		report.SnapshotsOK++
		snaps[k] = snap
	}
	return snaps
}

// alert sends a per-symbol throttled notification.
func (e *Engine) alert(acct *state.Account, symbol, text string) {
	throttle := time.Duration(e.cfg.Notify.ThrottleMinutes * float64(time.Minute))
	now := e.now().UTC()
	if last, ok := acct.LastAlerts[symbol]; ok && now.Sub(last) < throttle {
		return
	}
	if acct.LastAlerts == nil {
		acct.LastAlerts = map[string]time.Time{}
	}
	acct.LastAlerts[symbol] = now
	e.notifier.Notify(text)
}
