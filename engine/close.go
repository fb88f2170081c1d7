package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"spotbot/broker"
	"spotbot/journal"
	"spotbot/state"
)

// ClosePosition fully closes an open position at market. Used by both the
// automated manager and the manual control tool. If the closing order
// fails, the position stays ACTIVE and the error is returned: a position is
// never marked closed without a confirmed execution.
func (e *Engine) ClosePosition(ctx context.Context, acct *state.Account, pos *state.Position, reason, actor string) error {
	if !pos.Active() {
		return fmt.Errorf("position %s is not active", pos.ID)
	}

	fill, err := e.exec.PlaceMarketOrder(ctx, pos.Symbol, broker.Sell, broker.SizeSpec{BaseQty: pos.Quantity})
	if err != nil {
		log.Warn().Err(err).Str("symbol", pos.Symbol).Str("position", pos.ID).
			Str("reason", reason).Msg("closing order failed, position stays active")
		return fmt.Errorf("close %s: place order: %w", pos.Symbol, err)
	}

	now := e.now().UTC()
	exitPrice := fill.AvgPrice
	proceeds := fill.TotalCost
	pnl := proceeds - pos.InvestedUSD

	pos.RealizedUSD += pnl
	pos.ExitPrice = exitPrice
	pos.ClosedAt = now
	pos.MarkClosed(reason)
	pos.Tag(now, "closed by %s: %s exit %.4f pnl %.2f", actor, reason, exitPrice, pnl)

	acct.CashUSD += proceeds
	acct.Retire(pos, e.cfg.Risk.HistoryLimit)
	cooldown := time.Duration(e.cfg.Risk.CooldownHours * float64(time.Hour))
	acct.SetCooldown(pos.Symbol, now.Add(cooldown))

	if err := e.journal.RecordClose(journal.CloseRecord{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Timeframe:   pos.Timeframe,
		Tactic:      pos.Tactic,
		EntryZone:   pos.EntryZone,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    fill.FilledQty,
		InvestedUSD: pos.InvestedUSD,
		RealizedUSD: pos.RealizedUSD,
		Reason:      reason,
		Actor:       actor,
		OpenTime:    pos.OpenedAt,
		CloseTime:   now,
	}); err != nil {
		// the close already happened; an audit failure must not re-run it
		log.Error().Err(err).Str("position", pos.ID).Msg("journal write failed for closed position")
	}

	log.Info().Str("symbol", pos.Symbol).Str("position", pos.ID).Str("reason", reason).
		Float64("exit", exitPrice).Float64("pnl", pos.RealizedUSD).Str("actor", actor).
		Msg("position closed")
	e.notifier.Notify(fmt.Sprintf("Closed %s (%s): exit %.4f, total P&L $%.2f",
		pos.Symbol, reason, exitPrice, pos.RealizedUSD))
	return nil
}

// partialClose sells fraction of the position and books the proceeds while
// the position stays ACTIVE. On order failure nothing is booked.
func (e *Engine) partialClose(ctx context.Context, acct *state.Account, pos *state.Position, fraction float64, why string) error {
	sellQty := pos.Quantity * fraction
	fill, err := e.exec.PlaceMarketOrder(ctx, pos.Symbol, broker.Sell, broker.SizeSpec{BaseQty: sellQty})
	if err != nil {
		log.Warn().Err(err).Str("symbol", pos.Symbol).Str("position", pos.ID).
			Str("why", why).Msg("partial close order failed")
		return fmt.Errorf("partial close %s: %w", pos.Symbol, err)
	}

	credit := pos.ApplyPartialClose(fraction, fill.AvgPrice)
	acct.CashUSD += credit

	now := e.now().UTC()
	pos.Tag(now, "partial close %.0f%% (%s) at %.4f, credited %.2f", fraction*100, why, fill.AvgPrice, credit)
	log.Info().Str("symbol", pos.Symbol).Str("position", pos.ID).Str("why", why).
		Float64("fraction", fraction).Float64("price", fill.AvgPrice).
		Float64("credit", credit).Msg("partial close")
	return nil
}

// ExtendStale grants a staleness stay until the given time. Manual-tool
// only; the automated cycle never extends its own positions.
func (e *Engine) ExtendStale(acct *state.Account, positionID string, until time.Time, actor string) error {
	pos := acct.FindPosition(positionID)
	if pos == nil || !pos.Active() {
		return fmt.Errorf("no active position %s", positionID)
	}
	pos.StaleExtendedUntil = until
	pos.Tag(e.now().UTC(), "stale eviction extended until %s by %s", until.UTC().Format(time.RFC3339), actor)
	return nil
}
