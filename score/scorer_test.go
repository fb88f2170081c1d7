package score

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbot/market"
	"spotbot/tactic"
)

func strongSnap() market.Snapshot {
	return market.Snapshot{
		Symbol:          "BTCUSDT",
		Timeframe:       market.TF1h,
		Price:           50000,
		ADX:             35,
		Trend:           market.TrendUp,
		BandWidthPctile: 15,
		Breakout:        true,
		VolumeRatio:     2.5,
		Candles:         200,
	}
}

func TestScoreBounded(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	high, err := s.Score(ctx, strongSnap(), nil)
	require.NoError(t, err)
	assert.Greater(t, high, 8.0)
	assert.LessOrEqual(t, high, 10.0)

	weak := strongSnap()
	weak.Trend = market.TrendDown
	weak.ADX = 8
	weak.Breakout = false
	weak.BandWidthPctile = 95
	weak.VolumeRatio = 0.2
	low, err := s.Score(ctx, weak, nil)
	require.NoError(t, err)
	assert.Less(t, low, 2.0)
	assert.GreaterOrEqual(t, low, 0.0)
}

func TestScoreRespectsWeights(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	snap := strongSnap()
	snap.Breakout = false

	breakoutOnly, err := s.Score(ctx, snap, tactic.WeightProfile{"breakout": 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, breakoutOnly, 1e-9)

	trendOnly, err := s.Score(ctx, snap, tactic.WeightProfile{"trend": 1})
	require.NoError(t, err)
	assert.InDelta(t, 10, trendOnly, 1e-9)
}

func TestScoreInsufficientData(t *testing.T) {
	t.Parallel()

	_, err := New().Score(context.Background(), market.Snapshot{}, nil)
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	first, err := s.Score(ctx, strongSnap(), tactic.WeightProfile{"trend": 2, "volume": 1})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Score(ctx, strongSnap(), tactic.WeightProfile{"trend": 2, "volume": 1})
		require.NoError(t, err)
		assert.InDelta(t, first, again, 1e-12)
	}
}
