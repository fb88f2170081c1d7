package cmd

import (
	"fmt"
	"os"
	"time"

	"spotbot/broker"
	"spotbot/config"
	"spotbot/engine"
	"spotbot/journal"
	"spotbot/marketdata"
	"spotbot/notify"
	"spotbot/score"
	"spotbot/state"
)

// lockTimeout bounds how long a command waits for another spotbot process
// to release the state lock.
const lockTimeout = 30 * time.Second

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		cfg := config.Default()
		applyEnv(cfg)
		return cfg, nil
	}
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays secrets that do not belong in a config file.
func applyEnv(cfg *config.Config) {
	if url := os.Getenv("SPOTBOT_WEBHOOK_URL"); url != "" {
		cfg.Notify.WebhookURL = url
	}
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Journal.Type)
	}
}

// buildEngine wires the live collaborators: candles and quotes from the
// configured exchange endpoint, the reference scorer, quote-priced paper
// execution, and the configured journal and webhook.
func buildEngine(cfg *config.Config, j journal.Journal) (*engine.Engine, error) {
	client := marketdata.NewClient(cfg.Market.BaseURL,
		time.Duration(cfg.Market.TimeoutSeconds)*time.Second, cfg.Market.Retries)

	var notifier broker.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}
	var balances broker.Balances
	if cfg.Risk.BalancesFile != "" {
		balances = broker.NewFileBalances(cfg.Risk.BalancesFile)
	}

	return engine.New(cfg, engine.Deps{
		Data:     marketdata.NewProvider(client, cfg.Market.CandleLimit),
		Scorer:   score.New(),
		Balances: balances,
		Exec:     broker.NewQuotedExecutor(client),
		Notifier: notifier,
		Journal:  j,
	})
}

func openStore(cfg *config.Config) *state.Store {
	return state.NewStore(cfg.State.Path, cfg.State.LockPath, cfg.State.Backups)
}

// withLockedState runs fn with the state lock held, releasing it on every
// return path.
func withLockedState(cfg *config.Config, fn func(store *state.Store) error) error {
	store := openStore(cfg)
	if err := store.Lock(lockTimeout); err != nil {
		return err
	}
	defer store.Unlock()
	return fn(store)
}
