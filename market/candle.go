package market

import "time"

// Candle represents OHLCV candlestick data for one interval.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}
