package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbot/market"
	"spotbot/state"
)

func manageOnce(b *testBench, acct *state.Account, snap market.Snapshot) {
	snaps := map[snapKey]market.Snapshot{
		{snap.Symbol, string(snap.Timeframe)}: snap,
	}
	b.eng.managePositions(context.Background(), acct, snaps, nil)
}

func TestStopLossCloses(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 94)
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 94))

	assert.False(t, pos.Active())
	assert.Equal(t, "SL", pos.CloseReason())
	// 10 units sold at 94 against $1000 invested
	assert.InDelta(t, -60, pos.RealizedUSD, 1e-9)
	assert.InDelta(t, 9940, acct.CashUSD, 1e-9)
	assert.Empty(t, acct.Positions)
	require.Len(t, acct.History, 1)

	require.Len(t, b.journal.closes, 1)
	rec := b.journal.closes[0]
	assert.Equal(t, "pos-1", rec.PositionID)
	assert.Equal(t, "SL", rec.Reason)
	assert.Equal(t, ActorAuto, rec.Actor)

	assert.True(t, acct.OnCooldown("BTCUSDT", fixedNow.Add(time.Hour)))
	assert.False(t, acct.OnCooldown("BTCUSDT", fixedNow.Add(5*time.Hour)))
}

func TestStopLossBeatsTakeProfitWhenBothBracket(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	// a degenerate bracket where one price satisfies both rules
	pos.StopLoss = 100
	pos.TakeProfit = 100
	b.exec.SetPrice("BTCUSDT", 100)

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 100))

	assert.Equal(t, "SL", pos.CloseReason())
}

func TestTakeProfitCloses(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 111)
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 111))

	assert.Equal(t, "TP", pos.CloseReason())
	assert.InDelta(t, 110, pos.RealizedUSD, 1e-9)
}

func TestAbsoluteScoreFloorCloses(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 101)
	b.scorer.def = 2.5 // below the 3.0 floor

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 101))

	assert.Equal(t, "early-close-absolute", pos.CloseReason())
}

func TestScoreErrorSkipsScoreRulesOnly(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 101)
	b.scorer.err = assert.AnError

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 101))

	// score rules must not fire on a failed read, and LastScore keeps its
	// previous value
	assert.True(t, pos.Active())
	assert.Equal(t, 8.0, pos.LastScore)

	// hard stops still apply with a dead scorer
	b.exec.SetPrice("BTCUSDT", 94)
	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 94))
	assert.Equal(t, "SL", pos.CloseReason())
}

func TestScoreDecayPartialOncePerPosition(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 101)
	b.scorer.def = 4.0 // above floor, below 60% of entry score 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 101))

	assert.True(t, pos.Active())
	assert.True(t, pos.ScorePartialTaken)
	assert.InDelta(t, 5, pos.Quantity, 1e-9)
	assert.InDelta(t, 500, pos.InvestedUSD, 1e-9)
	assert.Equal(t, 100.0, pos.StopLoss, "stop moves to break-even")
	// half the stake back plus P&L on the closed half
	assert.InDelta(t, 9000+505, acct.CashUSD, 1e-9)

	// the rule never fires twice
	fills := len(b.exec.Fills())
	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 101))
	assert.Len(t, b.exec.Fills(), fills)
	assert.True(t, pos.Active())
}

func TestPartialTakeProfitAtTrigger(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	// risk distance 5, so 1.5R = 107.5, above breakout-rider's 1.2R trigger
	b.exec.SetPrice("BTCUSDT", 107.5)
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 107.5))

	assert.True(t, pos.Active())
	assert.True(t, pos.TP1Hit)
	assert.InDelta(t, 6, pos.Quantity, 1e-9)
	assert.InDelta(t, 600, pos.InvestedUSD, 1e-9)
	assert.Equal(t, 100.0, pos.StopLoss)
	// 40% of the stake back plus 4 units * $7.50 profit
	assert.InDelta(t, 9000+430, acct.CashUSD, 1e-9)
	assert.InDelta(t, 30, pos.RealizedUSD, 1e-9)
}

func TestProfitProtectionOnGiveBack(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	pos.TP1Hit = true // keep rule 5 quiet
	pos.PeakProfitPct = 0.08
	b.exec.SetPrice("BTCUSDT", 104) // 4% unrealized, 4% off the peak
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 104))

	assert.True(t, pos.Active())
	assert.True(t, pos.ProtectionTriggered)
	assert.InDelta(t, 5, pos.Quantity, 1e-9)
	assert.Equal(t, 100.0, pos.StopLoss)
}

func TestProtectionNotTriggeredBelowPeakThreshold(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	pos.TP1Hit = true
	pos.PeakProfitPct = 0.04 // never reached the 5% arm level
	b.exec.SetPrice("BTCUSDT", 100.5)
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 100.5))

	assert.False(t, pos.ProtectionTriggered)
	assert.True(t, pos.Active())
}

func TestTrailingStopOnlyRises(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	pos.TP1Hit = true
	pos.ProtectionTriggered = true
	b.scorer.def = 8.0

	// breakout-rider: activation 1.0R, distance 0.8R. At 106 (1.2R) the
	// candidate is 106 - 5*0.8 = 102.
	b.exec.SetPrice("BTCUSDT", 106)
	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 106))
	require.True(t, pos.Active())
	assert.InDelta(t, 102, pos.StopLoss, 1e-9)
	assert.True(t, pos.TrailingActive)

	// price retreats: the stop must hold
	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 105.5))
	assert.InDelta(t, 102, pos.StopLoss, 1e-9)

	// price advances: the stop follows
	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 108))
	assert.InDelta(t, 104, pos.StopLoss, 1e-9)
}

func TestPeakProfitTracksHighWaterMark(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	pos.TP1Hit = true
	b.scorer.def = 8.0
	b.exec.SetPrice("BTCUSDT", 103)

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 103))
	assert.InDelta(t, 0.03, pos.PeakProfitPct, 1e-9)

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 101))
	assert.InDelta(t, 0.03, pos.PeakProfitPct, 1e-9, "peak never falls")
}

func TestCloseOrderFailureKeepsPositionActive(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.eng.exec = failExec{err: assert.AnError}
	b.scorer.def = 8.0

	manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, 90))

	assert.True(t, pos.Active(), "no confirmed execution, no close")
	assert.Empty(t, b.journal.closes)
	assert.InDelta(t, 9000, acct.CashUSD, 1e-9)
}

func TestMissingSnapshotSkipsPosition(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 90)

	// snapshot for a different symbol only
	snaps := map[snapKey]market.Snapshot{
		{"ETHUSDT", "1h"}: snapAt("ETHUSDT", market.TF1h, 90),
	}
	b.eng.managePositions(context.Background(), acct, snaps, nil)

	assert.True(t, pos.Active())
}

func TestDesyncedPositionIsUnmanaged(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	b.exec.SetPrice("BTCUSDT", 90)

	snaps := map[snapKey]market.Snapshot{
		{"BTCUSDT", "1h"}: snapAt("BTCUSDT", market.TF1h, 90),
	}
	b.eng.managePositions(context.Background(), acct, snaps, map[string]bool{pos.ID: true})

	assert.True(t, pos.Active(), "desynced position must not be auto-closed")
}

func TestStaleEviction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*state.Position)
		price  float64
		score  float64
		closed bool
	}{
		{
			name:   "old flat low-score position is evicted",
			mutate: func(p *state.Position) { p.OpenedAt = fixedNow.Add(-50 * time.Hour) },
			price:  101, score: 5.0, closed: true,
		},
		{
			name:   "younger than the limit survives",
			mutate: func(p *state.Position) { p.OpenedAt = fixedNow.Add(-40 * time.Hour) },
			price:  101, score: 5.0, closed: false,
		},
		{
			name:   "trailing stop outranks staleness",
			mutate: func(p *state.Position) { p.OpenedAt = fixedNow.Add(-50 * time.Hour) },
			price:  108, score: 5.0, closed: false,
		},
		{
			name:   "score above the stay threshold survives",
			mutate: func(p *state.Position) { p.OpenedAt = fixedNow.Add(-50 * time.Hour) },
			price:  101, score: 7.0, closed: false,
		},
		{
			name: "manual extension suppresses eviction",
			mutate: func(p *state.Position) {
				p.OpenedAt = fixedNow.Add(-50 * time.Hour)
				p.StaleExtendedUntil = fixedNow.Add(24 * time.Hour)
			},
			price: 101, score: 5.0, closed: false,
		},
		{
			name: "expired extension no longer protects",
			mutate: func(p *state.Position) {
				p.OpenedAt = fixedNow.Add(-50 * time.Hour)
				p.StaleExtendedUntil = fixedNow.Add(-time.Hour)
			},
			price: 101, score: 5.0, closed: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := newBench(t, nil)
			acct := state.NewAccount(10000)
			pos := openPosition(acct)
			pos.TP1Hit = true
			pos.ScorePartialTaken = true
			tc.mutate(pos)
			b.exec.SetPrice("BTCUSDT", tc.price)
			b.scorer.def = tc.score

			manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, tc.price))

			if tc.closed {
				assert.Equal(t, "Stale", pos.CloseReason())
			} else {
				assert.True(t, pos.Active())
			}
		})
	}
}

func TestStaleProgressStay(t *testing.T) {
	t.Parallel()

	// the 1h profile demands 20% unrealized for an age stay; use a tactic
	// no longer in the catalog so neither score rules nor trailing can
	// intercept before the staleness check
	run := func(t *testing.T, price float64) *state.Position {
		b := newBench(t, nil)
		acct := state.NewAccount(10000)
		pos := openPosition(acct)
		pos.Tactic = "discontinued"
		pos.LastScore = 5.0
		pos.OpenedAt = fixedNow.Add(-50 * time.Hour)
		pos.TakeProfit = 130
		b.exec.SetPrice("BTCUSDT", price)

		manageOnce(b, acct, snapAt("BTCUSDT", market.TF1h, price))
		return pos
	}

	t.Run("enough progress earns the stay", func(t *testing.T) {
		t.Parallel()
		pos := run(t, 121) // 21% unrealized
		assert.True(t, pos.Active())
	})

	t.Run("too little progress is evicted", func(t *testing.T) {
		t.Parallel()
		pos := run(t, 101)
		assert.Equal(t, "Stale", pos.CloseReason())
	})

	t.Run("eight percent up still falls short of the bar", func(t *testing.T) {
		t.Parallel()
		pos := run(t, 108)
		assert.Equal(t, "Stale", pos.CloseReason())
	})
}

func TestExtendStale(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)

	until := fixedNow.Add(48 * time.Hour)
	require.NoError(t, b.eng.ExtendStale(acct, pos.ID, until, ActorManual))
	assert.Equal(t, until, pos.StaleExtendedUntil)
	require.NotEmpty(t, pos.Tags)

	assert.Error(t, b.eng.ExtendStale(acct, "nope", until, ActorManual))
}
