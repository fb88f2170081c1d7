package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"spotbot/broker"
	"spotbot/market"
	"spotbot/state"
	"spotbot/tactic"
)

// maybeDCA averages down into a losing position when the price has fallen
// far enough below the last tranche and the signal still endorses the
// symbol. The stop and target are recomputed from the new weighted average
// using the original risk distance, never re-derived from ATR.
func (e *Engine) maybeDCA(ctx context.Context, acct *state.Account, pos *state.Position, snap market.Snapshot, t tactic.Tactic, haveTactic, scoreOK bool, excluded map[string]bool) {
	cfg := e.cfg.DCA
	if !cfg.Enabled || !haveTactic {
		return
	}
	if len(pos.Entries) >= cfg.MaxEntries+1 { // opening tranche plus cfg.MaxEntries add-ons
		return
	}

	now := e.now().UTC()
	cooldown := time.Duration(cfg.CooldownHours * float64(time.Hour))
	if !pos.LastDCAAt.IsZero() && now.Sub(pos.LastDCAAt) < cooldown {
		return
	}

	price := snap.Price
	lastEntry := pos.LastEntryPrice()
	if lastEntry <= 0 || price >= lastEntry*(1-cfg.DropPct) {
		return
	}

	// the signal gate: never average into a position the scorer has abandoned
	if !scoreOK || pos.LastScore < cfg.MinScore {
		log.Info().Str("symbol", pos.Symbol).Float64("score", pos.LastScore).
			Msg("dca declined: score below gate")
		return
	}

	prevUSD := pos.Entries[len(pos.Entries)-1].USD
	tranche := prevUSD * cfg.Multiplier
	if tranche > acct.CashUSD {
		log.Info().Str("symbol", pos.Symbol).Float64("tranche", tranche).
			Float64("cash", acct.CashUSD).Msg("dca declined: insufficient cash")
		return
	}
	equity := acct.Equity(excluded)
	if acct.TotalInvested(excluded)+tranche > equity*e.cfg.Risk.MaxExposurePct {
		log.Info().Str("symbol", pos.Symbol).Float64("tranche", tranche).
			Msg("dca declined: exposure cap")
		return
	}

	fill, err := e.exec.PlaceMarketOrder(ctx, pos.Symbol, broker.Buy, broker.SizeSpec{QuoteUSD: tranche})
	if err != nil {
		log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("dca order failed")
		return
	}

	riskDistance := pos.RiskDistance() // frozen before the average moves

	acct.CashUSD -= fill.TotalCost
	pos.Entries = append(pos.Entries, state.DCAEntry{Price: fill.AvgPrice, USD: fill.TotalCost, Time: now})
	pos.RecomputeFromEntries()

	pos.StopLoss = pos.EntryPrice - riskDistance
	pos.TakeProfit = pos.EntryPrice + riskDistance*t.RewardRisk
	pos.LastDCAAt = now
	pos.Tag(now, "dca tranche %d: %.2f at %.4f, new avg %.4f sl %.4f tp %.4f",
		len(pos.Entries)-1, fill.TotalCost, fill.AvgPrice, pos.EntryPrice, pos.StopLoss, pos.TakeProfit)

	log.Info().Str("symbol", pos.Symbol).Str("position", pos.ID).
		Int("tranche", len(pos.Entries)-1).Float64("usd", fill.TotalCost).
		Float64("avg_entry", pos.EntryPrice).Msg("averaged down")
}
