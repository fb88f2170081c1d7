package market

import (
	"fmt"
	"time"
)

// Timeframe is a candle interval identifier ("15m", "1h", "4h", "1d").
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// ordered from shortest to longest; also fixes scan iteration order
var timeframeOrder = []Timeframe{TF15m, TF1h, TF4h, TF1d}

var timeframeDuration = map[Timeframe]time.Duration{
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// Known reports whether tf is a supported timeframe.
func (tf Timeframe) Known() bool {
	_, ok := timeframeDuration[tf]
	return ok
}

// Duration returns the candle interval length.
func (tf Timeframe) Duration() (time.Duration, error) {
	d, ok := timeframeDuration[tf]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	return d, nil
}

func (tf Timeframe) rank() int {
	for i, t := range timeframeOrder {
		if t == tf {
			return i
		}
	}
	return -1
}

// Higher returns the supported timeframes strictly longer than tf,
// shortest first.
func (tf Timeframe) Higher() []Timeframe {
	r := tf.rank()
	if r < 0 || r+1 >= len(timeframeOrder) {
		return nil
	}
	out := make([]Timeframe, len(timeframeOrder)-r-1)
	copy(out, timeframeOrder[r+1:])
	return out
}

// Timeframes returns all supported timeframes, shortest first.
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(timeframeOrder))
	copy(out, timeframeOrder)
	return out
}
