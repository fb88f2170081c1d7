package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spotbot/broker"
	"spotbot/config"
	"spotbot/journal"
	"spotbot/market"
	"spotbot/state"
	"spotbot/tactic"
)

// fixedNow anchors every engine test clock.
var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeData struct {
	snaps map[snapKey]market.Snapshot
	errs  map[string]error // by symbol
}

func (f *fakeData) GetIndicators(_ context.Context, symbol string, tf market.Timeframe) (market.Snapshot, error) {
	if err, ok := f.errs[symbol]; ok {
		return market.Snapshot{}, err
	}
	snap, ok := f.snaps[snapKey{symbol, string(tf)}]
	if !ok {
		return market.Snapshot{}, market.ErrInsufficientData
	}
	return snap, nil
}

type fakeScorer struct {
	scores map[string]float64 // by symbol
	def    float64
	err    error
}

func (f *fakeScorer) Score(_ context.Context, snap market.Snapshot, _ tactic.WeightProfile) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if s, ok := f.scores[snap.Symbol]; ok {
		return s, nil
	}
	return f.def, nil
}

type fakeBalances struct {
	balances map[string]broker.Balance
	err      error
}

func (f *fakeBalances) GetBalances(context.Context) (map[string]broker.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

type failExec struct{ err error }

func (f failExec) PlaceMarketOrder(context.Context, string, broker.Side, broker.SizeSpec) (broker.OrderFill, error) {
	return broker.OrderFill{}, f.err
}

type fakeJournal struct {
	mu     sync.Mutex
	closes []journal.CloseRecord
	equity []journal.EquitySnapshot
}

func (f *fakeJournal) RecordClose(rec journal.CloseRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, rec)
	return nil
}

func (f *fakeJournal) RecordEquity(snap journal.EquitySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.equity = append(f.equity, snap)
	return nil
}

func (f *fakeJournal) Close() error { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
}

// testBench wires an engine over in-memory fakes with a fixed clock.
type testBench struct {
	cfg      *config.Config
	eng      *Engine
	data     *fakeData
	scorer   *fakeScorer
	exec     *broker.PaperExecutor
	journal  *fakeJournal
	notifier *fakeNotifier
	balances *fakeBalances
}

func newBench(t *testing.T, mutate func(*config.Config)) *testBench {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	b := &testBench{
		cfg:      cfg,
		data:     &fakeData{snaps: map[snapKey]market.Snapshot{}},
		scorer:   &fakeScorer{scores: map[string]float64{}},
		exec:     broker.NewPaperExecutor(),
		journal:  &fakeJournal{},
		notifier: &fakeNotifier{},
	}

	// Balances is wired separately via withBalances; a typed-nil here
	// would read as a present collaborator.
	eng, err := New(cfg, Deps{
		Data:     b.data,
		Scorer:   b.scorer,
		Exec:     b.exec,
		Notifier: b.notifier,
		Journal:  b.journal,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	b.eng = eng
	return b
}

// withBalances rebuilds the engine with an external balance source.
func (b *testBench) withBalances(t *testing.T, bal *fakeBalances) {
	t.Helper()
	b.balances = bal
	eng, err := New(b.cfg, Deps{
		Data:     b.data,
		Scorer:   b.scorer,
		Balances: bal,
		Exec:     b.exec,
		Notifier: b.notifier,
		Journal:  b.journal,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	b.eng = eng
}

// openPosition seeds a plain active position: entry 100, sl 95, tp 110,
// quantity 10, invested $1000. Risk distance is 5, so RewardRisk 2 puts the
// target at 110.
func openPosition(acct *state.Account) *state.Position {
	pos := &state.Position{
		ID:          "pos-1",
		Symbol:      "BTCUSDT",
		Timeframe:   market.TF1h,
		Status:      state.StatusActive,
		Tactic:      "breakout-rider",
		EntryPrice:  100,
		Quantity:    10,
		InvestedUSD: 1000,
		StopLoss:    95,
		TakeProfit:  110,
		InitialStop: 95,
		Entries:     []state.DCAEntry{{Price: 100, USD: 1000, Time: fixedNow.Add(-2 * time.Hour)}},
		EntryScore:  8.0,
		LastScore:   8.0,
		OpenedAt:    fixedNow.Add(-2 * time.Hour),
	}
	acct.CashUSD -= 1000
	acct.Positions = append(acct.Positions, pos)
	return pos
}

func snapAt(symbol string, tf market.Timeframe, price float64) market.Snapshot {
	// classifies as COINCIDENT: breakout without a confirming ADX trend
	return market.Snapshot{
		Symbol:    symbol,
		Timeframe: tf,
		Price:     price,
		ATR:       2.0,
		ADX:       22,
		Trend:     market.TrendUp,
		Breakout:  true,
		Candles:   200,
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	_, err := New(cfg, Deps{Scorer: &fakeScorer{}, Exec: broker.NewPaperExecutor()})
	require.Error(t, err)

	_, err = New(cfg, Deps{Data: &fakeData{}, Scorer: &fakeScorer{}, Exec: broker.NewPaperExecutor()})
	require.NoError(t, err)
}
