// Package zone classifies a (symbol, timeframe) context into one of four
// market regimes. The label selects which tactics may trade the context and
// how much capital a new position receives.
package zone

import (
	"fmt"

	"spotbot/market"
)

// Zone is a market-regime label.
type Zone string

const (
	Leading    Zone = "LEADING"
	Coincident Zone = "COINCIDENT"
	Lagging    Zone = "LAGGING"
	Noise      Zone = "NOISE"
)

// ordered evaluation keeps classification deterministic
var all = []Zone{Leading, Coincident, Lagging, Noise}

// All returns the zones in their fixed evaluation order.
func All() []Zone {
	out := make([]Zone, len(all))
	copy(out, all)
	return out
}

// Parse validates a zone name from configuration.
func Parse(s string) (Zone, error) {
	for _, z := range all {
		if string(z) == s {
			return z, nil
		}
	}
	return "", fmt.Errorf("unknown zone %q", s)
}

// Classification thresholds. Tuned against 14-period ADX and a 100-period
// band-width distribution.
const (
	adxQuiet      = 20.0
	adxTrending   = 25.0
	squeezePctile = 20.0
)

// Classify assigns a zone from one indicator snapshot. It is pure: same
// snapshot in, same zone out. A snapshot with no usable history classifies
// as Noise.
func Classify(snap market.Snapshot) Zone {
	if snap.Candles == 0 || snap.Price <= 0 {
		return Noise
	}

	scores := map[Zone]int{}

	if snap.ADX > 0 && snap.ADX < adxQuiet {
		scores[Noise] += 2
	}
	if snap.ADX >= adxTrending {
		scores[Lagging] += 2
	}
	if snap.Trend == market.TrendUp && snap.ADX >= adxTrending {
		scores[Lagging]++
	}
	if snap.BandWidthPctile > 0 && snap.BandWidthPctile <= squeezePctile {
		scores[Leading] += 2
	}
	if snap.Breakout {
		scores[Coincident] += 3
	}

	best := Noise
	bestScore := 0
	tied := false
	for _, z := range all {
		s := scores[z]
		switch {
		case s > bestScore:
			best, bestScore, tied = z, s, false
		case s == bestScore && s > 0 && z != best:
			tied = true
		}
	}
	if bestScore == 0 || tied {
		return Noise
	}
	return best
}
