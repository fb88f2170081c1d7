package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbot/broker"
	"spotbot/state"
)

func TestReconcileMatchingBalances(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	openPosition(acct)
	b.withBalances(t, &fakeBalances{balances: map[string]broker.Balance{
		"BTC": {Free: 10},
	}})

	desynced := b.eng.reconcile(context.Background(), acct)
	assert.Empty(t, desynced)
	assert.Empty(t, b.notifier.msgs)
}

func TestReconcileFlagsDesyncWithoutClosing(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	pos := openPosition(acct)
	// holds half of what the state records, below the 95% tolerance
	b.withBalances(t, &fakeBalances{balances: map[string]broker.Balance{
		"BTC": {Free: 5},
	}})

	desynced := b.eng.reconcile(context.Background(), acct)
	assert.True(t, desynced[pos.ID])
	assert.True(t, pos.Active(), "never auto-closed")
	require.NotEmpty(t, b.notifier.msgs)

	// desynced positions drop out of exposure and equity
	assert.Zero(t, acct.TotalInvested(desynced))
	assert.InDelta(t, 9000, acct.Equity(desynced), 1e-9)
}

func TestReconcileWithinTolerance(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	openPosition(acct)
	// 96% held: dust from fees, inside the 95% tolerance
	b.withBalances(t, &fakeBalances{balances: map[string]broker.Balance{
		"BTC": {Free: 9.4, Locked: 0.2},
	}})

	desynced := b.eng.reconcile(context.Background(), acct)
	assert.Empty(t, desynced)
}

func TestReconcileSkippedOnBalanceError(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	openPosition(acct)
	b.withBalances(t, &fakeBalances{err: assert.AnError})

	desynced := b.eng.reconcile(context.Background(), acct)
	assert.Empty(t, desynced, "transient fetch failure must not flag positions")
}

func TestReconcileDisabledWithoutBalanceSource(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	openPosition(acct)

	desynced := b.eng.reconcile(context.Background(), acct)
	assert.Empty(t, desynced)
}

func TestReconcileAlertThrottling(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	acct := state.NewAccount(10000)
	openPosition(acct)
	b.withBalances(t, &fakeBalances{balances: map[string]broker.Balance{
		"BTC": {Free: 1},
	}})

	b.eng.reconcile(context.Background(), acct)
	b.eng.reconcile(context.Background(), acct)

	assert.Len(t, b.notifier.msgs, 1, "repeat alert inside the throttle window is dropped")
}

func TestBaseAsset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BTC", baseAsset("BTCUSDT", "USDT"))
	assert.Equal(t, "SOL", baseAsset("SOLUSDT", "USDT"))
	assert.Equal(t, "BTCUSD", baseAsset("BTCUSD", "USDT"))
}
