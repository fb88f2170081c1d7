// Package score holds the reference opportunity scorer. The engine treats
// scoring as an external collaborator; this implementation is a simple
// weighted blend of snapshot components so the bot is usable end to end
// without a separate scoring service.
package score

import (
	"context"
	"math"

	"spotbot/market"
	"spotbot/tactic"
)

// component names a weight profile can reference
const (
	compTrend    = "trend"
	compMomentum = "momentum"
	compSqueeze  = "squeeze"
	compBreakout = "breakout"
	compVolume   = "volume"
)

type Scorer struct{}

func New() *Scorer { return &Scorer{} }

// Score blends snapshot components into [0,10]. Unknown weight keys are
// ignored; an empty profile weighs every component equally.
func (s *Scorer) Score(ctx context.Context, snap market.Snapshot, weights tactic.WeightProfile) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if snap.Candles == 0 || snap.Price <= 0 {
		return 0, market.ErrInsufficientData
	}

	components := map[string]float64{
		compTrend:    trendComponent(snap),
		compMomentum: momentumComponent(snap),
		compSqueeze:  squeezeComponent(snap),
		compBreakout: breakoutComponent(snap),
		compVolume:   volumeComponent(snap),
	}

	var weighted, total float64
	for name, value := range components {
		w := 1.0
		if len(weights) > 0 {
			w = weights[name]
		}
		if w <= 0 {
			continue
		}
		weighted += value * w
		total += w
	}
	if total == 0 {
		return 0, nil
	}
	return clamp(10*weighted/total, 0, 10), nil
}

func trendComponent(snap market.Snapshot) float64 {
	switch snap.Trend {
	case market.TrendUp:
		return 1
	case market.TrendDown:
		return 0
	default:
		return 0.4
	}
}

// momentumComponent maps ADX 10..40 onto 0..1.
func momentumComponent(snap market.Snapshot) float64 {
	return clamp((snap.ADX-10)/30, 0, 1)
}

// squeezeComponent rewards a tight band-width percentile.
func squeezeComponent(snap market.Snapshot) float64 {
	if snap.BandWidthPctile <= 0 {
		return 0
	}
	return clamp(1-snap.BandWidthPctile/100, 0, 1)
}

func breakoutComponent(snap market.Snapshot) float64 {
	if snap.Breakout {
		return 1
	}
	return 0
}

// volumeComponent saturates at twice the trailing average.
func volumeComponent(snap market.Snapshot) float64 {
	if snap.VolumeRatio <= 0 {
		return 0.5 // unknown volume is neutral
	}
	return clamp(snap.VolumeRatio/2, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
