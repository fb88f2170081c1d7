package market

import "errors"

// ErrInsufficientData is returned by indicator providers when there is not
// enough history to compute a snapshot. Callers treat it as "no signal",
// not as a failure.
var ErrInsufficientData = errors.New("insufficient market data")

// Trend is the direction label attached to a snapshot.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// Snapshot is one (symbol, timeframe) indicator reading, recomputed each
// cycle. All fields are derived from candle history by the market-data
// provider; the engine never mutates a snapshot.
type Snapshot struct {
	Symbol    string
	Timeframe Timeframe

	Price float64
	ATR   float64
	ADX   float64
	Trend Trend

	// Bollinger band width as a percentile (0..100) of its trailing
	// distribution.
	BandWidthPctile float64

	// Breakout is set when the close exceeds the recent high water mark.
	Breakout bool

	// VolumeRatio is last volume over its trailing average.
	VolumeRatio float64

	// Candles counts the history length backing this snapshot.
	Candles int
}
