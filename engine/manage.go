package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"spotbot/market"
	"spotbot/state"
	"spotbot/zone"
)

// managePositions evaluates every open position against the exit rules.
// Positions whose symbol had no usable snapshot this cycle are skipped (a
// dead feed for one symbol must not block the others); desynchronized
// positions are skipped entirely.
func (e *Engine) managePositions(ctx context.Context, acct *state.Account, snaps map[snapKey]market.Snapshot, desynced map[string]bool) {
	// iterate over a copy: closes mutate acct.Positions
	open := make([]*state.Position, len(acct.Positions))
	copy(open, acct.Positions)

	for _, pos := range open {
		if !pos.Active() || desynced[pos.ID] {
			continue
		}
		snap, ok := snaps[snapKey{pos.Symbol, string(pos.Timeframe)}]
		if !ok {
			log.Warn().Str("symbol", pos.Symbol).Str("position", pos.ID).
				Msg("no snapshot this cycle, position unmanaged")
			continue
		}
		e.evaluate(ctx, acct, pos, snap, desynced)
	}
}

// evaluate runs the exit rules for one position in fixed precedence order;
// the first rule that fires wins the cycle. The ordering below mirrors the
// live behaviour exactly: hard stops before score exits, score exits before
// profit-taking, profit-taking before trailing. Staleness is considered
// only when nothing else fired.
func (e *Engine) evaluate(ctx context.Context, acct *state.Account, pos *state.Position, snap market.Snapshot, desynced map[string]bool) {
	price := snap.Price
	if price <= 0 {
		return
	}

	pos.LastZone = zone.Classify(snap)

	t, haveTactic := e.catalog.ByName(pos.Tactic)
	scoreOK := false
	if haveTactic {
		if s, err := e.scorer.Score(ctx, snap, t.Weights); err == nil {
			pos.LastScore = s
			scoreOK = true
		} else {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("score unavailable, score rules skipped")
		}
	}

	if up := pos.UnrealizedPct(price); up > pos.PeakProfitPct {
		pos.PeakProfitPct = up
	}

	// 1. stop-loss. On order failure the position stays active and the
	// rule simply fires again next cycle.
	if price <= pos.StopLoss {
		_ = e.ClosePosition(ctx, acct, pos, "SL", ActorAuto)
		return
	}

	// 2. take-profit
	if price >= pos.TakeProfit {
		_ = e.ClosePosition(ctx, acct, pos, "TP", ActorAuto)
		return
	}

	// 3. absolute score floor
	if scoreOK && pos.LastScore < e.cfg.Exits.AbsoluteScoreFloor {
		_ = e.ClosePosition(ctx, acct, pos, "early-close-absolute", ActorAuto)
		return
	}

	// 4. relative score decay, once per position
	if scoreOK && !pos.ScorePartialTaken && pos.EntryScore > 0 &&
		pos.LastScore < pos.EntryScore*e.cfg.Exits.ScoreDecayFraction {
		if err := e.partialClose(ctx, acct, pos, e.cfg.Exits.ScoreDecayClosePct, "score-decay"); err == nil {
			pos.BreakEven()
			pos.ScorePartialTaken = true
		}
		return
	}

	// 5. partial take-profit
	if haveTactic && t.PartialTP.Enabled && !pos.TP1Hit &&
		pos.RiskMultiple(price) >= t.PartialTP.TriggerR {
		if err := e.partialClose(ctx, acct, pos, t.PartialTP.Percent, "tp1"); err == nil {
			pos.BreakEven()
			pos.TP1Hit = true
		}
		return
	}

	// 6. profit protection
	if e.cfg.Exits.ProtectionEnabled && !pos.ProtectionTriggered &&
		pos.PeakProfitPct >= e.cfg.Exits.ProtectionPeakPct &&
		pos.PeakProfitPct-pos.UnrealizedPct(price) > e.cfg.Exits.ProtectionDropPct {
		if err := e.partialClose(ctx, acct, pos, e.cfg.Exits.ProtectionClosePct, "profit-protection"); err == nil {
			pos.BreakEven()
			pos.ProtectionTriggered = true
		}
		return
	}

	// 7. trailing stop: monotonic, the stop only ever rises
	if haveTactic && t.Trailing.Enabled && pos.RiskMultiple(price) >= t.Trailing.ActivationR {
		candidate := price - pos.RiskDistance()*t.Trailing.DistanceR
		if candidate > pos.StopLoss {
			pos.StopLoss = candidate
			if !pos.TrailingActive {
				pos.TrailingActive = true
				pos.Tag(e.now().UTC(), "trailing stop armed at %.4f", candidate)
			}
			return
		}
	}

	// 8. staleness eviction
	if e.isStale(pos, price) {
		_ = e.ClosePosition(ctx, acct, pos, "Stale", ActorAuto)
		return
	}

	// nothing fired: consider averaging down
	e.maybeDCA(ctx, acct, pos, snap, t, haveTactic, scoreOK, desynced)
}

// isStale applies the eviction rule: old, going nowhere, signal gone, and
// no operator stay in force.
func (e *Engine) isStale(pos *state.Position, price float64) bool {
	profile, ok := e.cfg.Profiles[pos.Timeframe]
	if !ok {
		return false
	}
	now := e.now()
	ageHours := now.Sub(pos.OpenedAt).Hours()
	if ageHours <= profile.StaleHours {
		return false
	}
	if pos.UnrealizedPct(price) >= profile.ProgressPct {
		return false
	}
	if pos.LastScore >= e.cfg.Exits.StayOfExecution {
		return false
	}
	if !pos.StaleExtendedUntil.IsZero() && now.Before(pos.StaleExtendedUntil) {
		return false
	}
	return true
}
