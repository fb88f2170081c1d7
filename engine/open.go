package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"spotbot/broker"
	"spotbot/config"
	"spotbot/market"
	"spotbot/pkg/id"
	"spotbot/state"
	"spotbot/tactic"
	"spotbot/zone"
)

// Candidate is a scan winner handed to the opener.
type Candidate struct {
	Symbol    string
	Timeframe market.Timeframe
	Tactic    tactic.Tactic
	Zone      zone.Zone
	Score     float64
	Snapshot  market.Snapshot
}

// OpenPosition sizes and records a new position for the candidate. A nil
// rejection and nil error means the position was opened and appended to the
// account. Rejections are normal declined actions; errors are execution
// failures (the account is left untouched). Positions in excluded (the
// cycle's desynchronized set) are left out of the equity and exposure math:
// capital in dispute neither sizes new positions nor blocks them.
func (e *Engine) OpenPosition(ctx context.Context, acct *state.Account, c Candidate, actor string, excluded map[string]bool) (*state.Position, *Rejection, error) {
	if existing := acct.ActiveBySymbol(c.Symbol); existing != nil {
		return nil, reject("ALREADY_OPEN", "%s already has position %s", c.Symbol, existing.ID), nil
	}

	profile, ok := e.cfg.Profiles[c.Timeframe]
	if !ok {
		return nil, reject("NO_PROFILE", "timeframe %s has no profile", c.Timeframe), nil
	}

	entry := c.Snapshot.Price
	levels, rej := computeLevels(entry, c.Snapshot.ATR, c.Tactic, profile)
	if rej != nil {
		return nil, rej, nil
	}

	equity := acct.Equity(excluded)
	capital := equity * e.cfg.Capital[c.Zone]
	if capital <= 0 {
		return nil, reject("NO_CAPITAL_POLICY", "zone %s allocates no capital", c.Zone), nil
	}
	if capital > acct.CashUSD {
		return nil, reject("INSUFFICIENT_CASH", "need %.2f, have %.2f", capital, acct.CashUSD), nil
	}
	exposure := acct.TotalInvested(excluded)
	if exposure+capital > equity*e.cfg.Risk.MaxExposurePct {
		return nil, reject("EXPOSURE_CAP", "exposure %.2f + %.2f exceeds %.0f%% of equity %.2f",
			exposure, capital, 100*e.cfg.Risk.MaxExposurePct, equity), nil
	}
	if capital < e.cfg.Risk.MinOrderUSD {
		return nil, reject("BELOW_MIN_ORDER", "%.2f below exchange minimum %.2f", capital, e.cfg.Risk.MinOrderUSD), nil
	}

	fill, err := e.exec.PlaceMarketOrder(ctx, c.Symbol, broker.Buy, broker.SizeSpec{QuoteUSD: capital})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: place order: %w", c.Symbol, err)
	}

	// recompute levels from the actual fill so sl/tp bracket what we paid
	if fill.AvgPrice > 0 && fill.AvgPrice != entry {
		if l, rej := computeLevels(fill.AvgPrice, c.Snapshot.ATR, c.Tactic, profile); rej == nil {
			entry, levels = fill.AvgPrice, l
		} else {
			entry = fill.AvgPrice
		}
	}

	now := e.now().UTC()
	pos := &state.Position{
		ID:          id.New(),
		Symbol:      c.Symbol,
		Timeframe:   c.Timeframe,
		Status:      state.StatusActive,
		Tactic:      c.Tactic.Name,
		EntryPrice:  entry,
		Quantity:    fill.FilledQty,
		InvestedUSD: fill.TotalCost,
		StopLoss:    levels.stop,
		TakeProfit:  levels.target,
		InitialStop: levels.stop,
		Entries:     []state.DCAEntry{{Price: entry, USD: fill.TotalCost, Time: now}},
		EntryScore:  c.Score,
		LastScore:   c.Score,
		EntryZone:   c.Zone,
		LastZone:    c.Zone,
		OpenedAt:    now,
	}
	pos.Tag(now, "opened by %s: %s %s score %.2f zone %s sl %.4f tp %.4f",
		actor, c.Tactic.Name, c.Timeframe, c.Score, c.Zone, levels.stop, levels.target)

	acct.CashUSD -= fill.TotalCost
	acct.Positions = append(acct.Positions, pos)

	log.Info().Str("symbol", c.Symbol).Str("tactic", c.Tactic.Name).
		Str("timeframe", string(c.Timeframe)).Float64("invested", fill.TotalCost).
		Float64("entry", entry).Float64("sl", levels.stop).Float64("tp", levels.target).
		Str("actor", actor).Msg("position opened")
	e.notifier.Notify(fmt.Sprintf("Opened %s %s (%s) invested $%.2f entry %.4f sl %.4f tp %.4f",
		c.Symbol, c.Timeframe, c.Tactic.Name, fill.TotalCost, entry, levels.stop, levels.target))

	return pos, nil, nil
}

// BuildCandidate assembles a candidate for a manual open: fetch and score
// the current snapshot for the pair, classify its zone, and pick a tactic.
// With tacticName empty the first catalog tactic eligible for the zone is
// used; a named tactic is honored regardless of zone, since the operator
// is overriding the scanner's policy on purpose.
func (e *Engine) BuildCandidate(ctx context.Context, symbol string, tf market.Timeframe, tacticName string) (*Candidate, error) {
	snap, err := e.data.GetIndicators(ctx, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("indicators %s/%s: %w", symbol, tf, err)
	}
	z := zone.Classify(snap)

	var t tactic.Tactic
	if tacticName != "" {
		var ok bool
		if t, ok = e.catalog.ByName(tacticName); !ok {
			return nil, fmt.Errorf("unknown tactic %q", tacticName)
		}
	} else {
		found := false
		for _, cand := range e.catalog.All() {
			if cand.EligibleFor(z) {
				t, found = cand, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no tactic trades the %s zone, name one explicitly", z)
		}
	}

	score, err := e.scorer.Score(ctx, snap, t.Weights)
	if err != nil {
		return nil, fmt.Errorf("score %s/%s: %w", symbol, tf, err)
	}

	return &Candidate{
		Symbol:    symbol,
		Timeframe: tf,
		Tactic:    t,
		Zone:      z,
		Score:     score,
		Snapshot:  snap,
	}, nil
}

type levels struct {
	stop, target, riskDistance float64
}

// computeLevels derives stop-loss and take-profit from the entry, the ATR,
// and the timeframe caps. Every failure mode here is a rejection, not an
// error: the market simply does not admit a well-formed bracket.
func computeLevels(entry, atr float64, t tactic.Tactic, profile config.TimeframeProfile) (levels, *Rejection) {
	if entry <= 0 {
		return levels{}, reject("BAD_ENTRY", "entry price %.4f", entry)
	}
	riskDistance := math.Min(atr*t.StopATR, entry*profile.MaxStopPct)
	if riskDistance <= 0 {
		return levels{}, reject("NO_RISK_DISTANCE", "atr %.4f yields no stop distance", atr)
	}

	stop := entry - riskDistance
	target := math.Min(entry+riskDistance*t.RewardRisk, entry*(1+profile.MaxTPPct))
	if stop <= 0 || stop >= entry || target <= entry || target <= stop {
		return levels{}, reject("BAD_BRACKET", "sl %.4f entry %.4f tp %.4f do not bracket", stop, entry, target)
	}
	return levels{stop: stop, target: target, riskDistance: riskDistance}, nil
}
