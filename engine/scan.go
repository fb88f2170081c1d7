package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"spotbot/market"
	"spotbot/state"
	"spotbot/zone"
)

// mtfAdjust is the discrete multi-timeframe coefficient table, keyed by
// (scanned timeframe, higher timeframe). The factors multiply together, so
// each additional disagreeing timeframe escalates the penalty.
var mtfAdjust = map[[2]market.Timeframe]struct{ agree, disagree float64 }{
	{market.TF15m, market.TF1h}: {1.05, 0.90},
	{market.TF15m, market.TF4h}: {1.04, 0.85},
	{market.TF15m, market.TF1d}: {1.03, 0.80},
	{market.TF1h, market.TF4h}:  {1.06, 0.88},
	{market.TF1h, market.TF1d}:  {1.04, 0.82},
	{market.TF4h, market.TF1d}:  {1.08, 0.85},
}

// scan walks the idle universe in configured order and returns the single
// best candidate at or above its tactic's entry threshold, or nil. Ties
// keep the first-seen tuple, so iteration order is part of the contract:
// symbols in configured order, then timeframes, then catalog order.
func (e *Engine) scan(ctx context.Context, acct *state.Account, snaps map[snapKey]market.Snapshot) *Candidate {
	now := e.now()
	var best *Candidate

	for _, symbol := range e.cfg.Universe.Symbols {
		if acct.ActiveBySymbol(symbol) != nil {
			continue
		}
		if acct.OnCooldown(symbol, now) {
			continue
		}
		for _, tf := range e.cfg.Universe.Timeframes {
			snap, ok := snaps[snapKey{symbol, string(tf)}]
			if !ok {
				continue
			}
			z := zone.Classify(snap)
			coeff := e.mtfCoefficient(symbol, tf, snap.Trend, snaps)

			for _, t := range e.catalog.All() {
				if !t.EligibleFor(z) {
					continue
				}
				base, err := e.scorer.Score(ctx, snap, t.Weights)
				if err != nil {
					if !errors.Is(err, market.ErrInsufficientData) {
						log.Warn().Err(err).Str("symbol", symbol).Str("tactic", t.Name).
							Msg("scorer failed for candidate")
					}
					continue
				}
				adjusted := base * coeff
				if adjusted < t.EntryThreshold {
					continue
				}
				if best == nil || adjusted > best.Score {
					best = &Candidate{
						Symbol:    symbol,
						Timeframe: tf,
						Tactic:    t,
						Zone:      z,
						Score:     adjusted,
						Snapshot:  snap,
					}
				}
			}
		}
	}
	return best
}

// mtfCoefficient multiplies the agreement factor for every higher timeframe
// trending with the scanned direction and the penalty factor for every one
// trending against it. Flat or missing higher timeframes contribute
// nothing.
func (e *Engine) mtfCoefficient(symbol string, tf market.Timeframe, dir market.Trend, snaps map[snapKey]market.Snapshot) float64 {
	coeff := 1.0
	if dir == market.TrendFlat {
		return coeff
	}
	for _, higher := range tf.Higher() {
		hsnap, ok := snaps[snapKey{symbol, string(higher)}]
		if !ok {
			continue
		}
		factors, ok := mtfAdjust[[2]market.Timeframe{tf, higher}]
		if !ok {
			continue
		}
		switch hsnap.Trend {
		case dir:
			coeff *= factors.agree
		case market.TrendFlat:
			// no opinion
		default:
			coeff *= factors.disagree
		}
	}
	return coeff
}
