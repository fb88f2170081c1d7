package marketdata

import (
	"context"
	"fmt"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"spotbot/market"
)

const (
	atrPeriod      = 14
	adxPeriod      = 14
	emaFastPeriod  = 20
	emaSlowPeriod  = 50
	bbPeriod       = 20
	bbWindow       = 100 // trailing band-width distribution length
	breakoutWindow = 20
	volumePeriod   = 20

	// minCandles is the history needed to produce a full snapshot.
	minCandles = bbPeriod + bbWindow
)

// CandleSource abstracts the REST client so tests can feed canned history.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// Provider derives indicator snapshots from candle history. It is stateless;
// cycle-local caching is the orchestrator's concern.
type Provider struct {
	source CandleSource
	limit  int
}

func NewProvider(source CandleSource, candleLimit int) *Provider {
	if candleLimit < minCandles {
		candleLimit = minCandles
	}
	return &Provider{source: source, limit: candleLimit}
}

// GetIndicators fetches history and computes the snapshot. Too little
// history returns market.ErrInsufficientData rather than a partial reading.
func (p *Provider) GetIndicators(ctx context.Context, symbol string, tf market.Timeframe) (market.Snapshot, error) {
	candles, err := p.source.Candles(ctx, symbol, tf, p.limit)
	if err != nil {
		return market.Snapshot{}, err
	}
	return Compute(symbol, tf, candles)
}

// Compute builds a snapshot from candle history, oldest first.
func Compute(symbol string, tf market.Timeframe, candles []market.Candle) (market.Snapshot, error) {
	if len(candles) < minCandles {
		return market.Snapshot{}, fmt.Errorf("%s/%s has %d candles, need %d: %w",
			symbol, tf, len(candles), minCandles, market.ErrInsufficientData)
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i], volumes[i] = c.High, c.Low, c.Close, c.Volume
	}

	snap := market.Snapshot{
		Symbol:    symbol,
		Timeframe: tf,
		Price:     closes[len(closes)-1],
		Candles:   len(candles),
	}

	if atrs := atrSeries(highs, lows, closes); len(atrs) > 0 {
		snap.ATR = atrs[len(atrs)-1]
	}
	if v, ok := adx(highs, lows, closes, adxPeriod); ok {
		snap.ADX = v
	}
	snap.Trend = trendDirection(closes)
	snap.BandWidthPctile = bandWidthPercentile(closes)
	snap.Breakout = breakout(highs, closes)
	snap.VolumeRatio = volumeRatio(volumes)

	return snap, nil
}

func atrSeries(highs, lows, closes []float64) []float64 {
	if len(closes) < atrPeriod+1 {
		return nil
	}
	a := volatility.NewAtrWithPeriod[float64](atrPeriod)
	return helper.ChanToSlice(a.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
}

// trendDirection compares fast and slow EMAs of the close.
func trendDirection(closes []float64) market.Trend {
	if len(closes) < emaSlowPeriod {
		return market.TrendFlat
	}
	fast := helper.ChanToSlice(trend.NewEmaWithPeriod[float64](emaFastPeriod).Compute(helper.SliceToChan(closes)))
	slow := helper.ChanToSlice(trend.NewEmaWithPeriod[float64](emaSlowPeriod).Compute(helper.SliceToChan(closes)))
	if len(fast) == 0 || len(slow) == 0 {
		return market.TrendFlat
	}
	f, s := fast[len(fast)-1], slow[len(slow)-1]
	switch {
	case s == 0:
		return market.TrendFlat
	case f > s*1.001:
		return market.TrendUp
	case f < s*0.999:
		return market.TrendDown
	default:
		return market.TrendFlat
	}
}

// bandWidthPercentile ranks the latest Bollinger band width within its
// trailing distribution; low values mean a volatility squeeze.
func bandWidthPercentile(closes []float64) float64 {
	upper, middle, lower := bollinger(closes)
	n := len(middle)
	if n == 0 {
		return 0
	}

	widths := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if middle[i] == 0 {
			continue
		}
		widths = append(widths, (upper[i]-lower[i])/middle[i])
	}
	if len(widths) == 0 {
		return 0
	}
	if len(widths) > bbWindow {
		widths = widths[len(widths)-bbWindow:]
	}

	last := widths[len(widths)-1]
	sorted := append([]float64(nil), widths...)
	sort.Float64s(sorted)
	rank := sort.SearchFloat64s(sorted, last)
	return 100 * float64(rank) / float64(len(sorted))
}

func bollinger(closes []float64) (upper, middle, lower []float64) {
	bb := volatility.NewBollingerBandsWithPeriod[float64](bbPeriod)
	u, m, l := bb.Compute(helper.SliceToChan(closes))

	done := make(chan struct{}, 3)
	go func() { upper = helper.ChanToSlice(u); done <- struct{}{} }()
	go func() { middle = helper.ChanToSlice(m); done <- struct{}{} }()
	go func() { lower = helper.ChanToSlice(l); done <- struct{}{} }()
	for i := 0; i < 3; i++ {
		<-done
	}
	n := len(upper)
	if len(middle) < n {
		n = len(middle)
	}
	if len(lower) < n {
		n = len(lower)
	}
	return upper[:n], middle[:n], lower[:n]
}

// breakout fires when the latest close clears the prior window's high.
func breakout(highs, closes []float64) bool {
	n := len(closes)
	if n < breakoutWindow+1 {
		return false
	}
	var prevHigh float64
	for _, h := range highs[n-1-breakoutWindow : n-1] {
		if h > prevHigh {
			prevHigh = h
		}
	}
	return closes[n-1] > prevHigh
}

func volumeRatio(volumes []float64) float64 {
	n := len(volumes)
	if n < volumePeriod+1 {
		return 0
	}
	var sum float64
	for _, v := range volumes[n-1-volumePeriod : n-1] {
		sum += v
	}
	avg := sum / volumePeriod
	if avg == 0 {
		return 0
	}
	return volumes[n-1] / avg
}
