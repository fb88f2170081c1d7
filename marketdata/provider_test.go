package marketdata

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbot/market"
)

// synthetic history: base price with a gentle sine wobble
func history(n int, base float64) []market.Candle {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		p := base * (1 + 0.01*math.Sin(float64(i)/7))
		out[i] = market.Candle{
			Open:   p * 0.999,
			High:   p * 1.004,
			Low:    p * 0.996,
			Close:  p,
			Volume: 1000 + 10*float64(i%17),
			Time:   start.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestComputeSnapshot(t *testing.T) {
	t.Parallel()

	candles := history(200, 50000)
	snap, err := Compute("BTCUSDT", market.TF1h, candles)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, market.TF1h, snap.Timeframe)
	assert.InDelta(t, candles[len(candles)-1].Close, snap.Price, 1e-9)
	assert.Greater(t, snap.ATR, 0.0)
	assert.GreaterOrEqual(t, snap.ADX, 0.0)
	assert.GreaterOrEqual(t, snap.BandWidthPctile, 0.0)
	assert.LessOrEqual(t, snap.BandWidthPctile, 100.0)
	assert.Greater(t, snap.VolumeRatio, 0.0)
	assert.Equal(t, 200, snap.Candles)
}

func TestComputeInsufficientHistory(t *testing.T) {
	t.Parallel()

	_, err := Compute("BTCUSDT", market.TF1h, history(30, 50000))
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestComputeBreakout(t *testing.T) {
	t.Parallel()

	candles := history(200, 50000)
	// final close clears every prior high
	last := &candles[len(candles)-1]
	last.Close = 60000
	last.High = 60100

	snap, err := Compute("BTCUSDT", market.TF1h, candles)
	require.NoError(t, err)
	assert.True(t, snap.Breakout)
}

func TestComputeUptrend(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 200)
	for i := range candles {
		p := 100 + float64(i) // steady climb
		candles[i] = market.Candle{
			Open: p - 0.5, High: p + 1, Low: p - 1, Close: p,
			Volume: 1000,
			Time:   start.Add(time.Duration(i) * time.Hour),
		}
	}

	snap, err := Compute("ETHUSDT", market.TF1h, candles)
	require.NoError(t, err)
	assert.Equal(t, market.TrendUp, snap.Trend)
	assert.Greater(t, snap.ADX, 20.0)
}

type cannedSource struct {
	candles []market.Candle
	err     error
	calls   int
}

func (s *cannedSource) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestProviderDelegates(t *testing.T) {
	t.Parallel()

	src := &cannedSource{candles: history(200, 2000)}
	p := NewProvider(src, 200)

	snap, err := p.GetIndicators(context.Background(), "ETHUSDT", market.TF4h)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", snap.Symbol)
	assert.Equal(t, 1, src.calls)
}

func TestAdxWarmup(t *testing.T) {
	t.Parallel()

	h := []float64{1, 2, 3}
	_, ok := adx(h, h, h, 14)
	assert.False(t, ok)
}
