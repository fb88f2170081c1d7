package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"spotbot/state"
)

// reconcile compares every open position against externally reported
// balances. A position whose base asset is no longer held (within
// tolerance) is desynchronized: excluded from management and exposure for
// this cycle and surfaced for manual resolution. It is never auto-closed;
// the bot cannot fabricate a P&L for an asset it no longer controls.
func (e *Engine) reconcile(ctx context.Context, acct *state.Account) map[string]bool {
	desynced := map[string]bool{}
	if e.balances == nil {
		return desynced
	}

	balances, err := e.balances.GetBalances(ctx)
	if err != nil {
		// transient: skip reconciliation this cycle, manage everything
		log.Warn().Err(err).Msg("balance fetch failed, reconciliation skipped")
		return desynced
	}

	for _, pos := range acct.Positions {
		if !pos.Active() {
			continue
		}
		asset := baseAsset(pos.Symbol, e.cfg.Account.QuoteAsset)
		held := balances[asset].Total()
		if held < pos.Quantity*e.cfg.Risk.ReconcileTolerance {
			desynced[pos.ID] = true
			log.Error().Str("symbol", pos.Symbol).Str("position", pos.ID).
				Float64("recorded_qty", pos.Quantity).Float64("held_qty", held).
				Msg("position desynchronized from external account")
			e.alert(acct, pos.Symbol, fmt.Sprintf(
				"Position %s (%s) is desynchronized: holds %.8f externally, expected %.8f. Manual resolution required.",
				pos.ID, pos.Symbol, held, pos.Quantity))
		}
	}
	return desynced
}

// baseAsset strips the quote suffix from a trading pair symbol.
func baseAsset(symbol, quote string) string {
	return strings.TrimSuffix(symbol, quote)
}
