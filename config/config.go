package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"spotbot/market"
	"spotbot/tactic"
	"spotbot/zone"
)

// Config is the complete engine configuration.
type Config struct {
	Account  AccountConfig                         `json:"account" yaml:"account"`
	Universe UniverseConfig                        `json:"universe" yaml:"universe"`
	Profiles map[market.Timeframe]TimeframeProfile `json:"timeframe_profiles" yaml:"timeframe_profiles"`
	Capital  map[zone.Zone]float64                 `json:"zone_capital_pct" yaml:"zone_capital_pct"`
	Risk     RiskConfig                            `json:"risk" yaml:"risk"`
	Exits    ExitConfig                            `json:"exits" yaml:"exits"`
	DCA      DCAConfig                             `json:"dca" yaml:"dca"`
	Tactics  []tactic.Tactic                       `json:"tactics,omitempty" yaml:"tactics,omitempty"`
	State    StateConfig                           `json:"state" yaml:"state"`
	Journal  JournalConfig                         `json:"journal" yaml:"journal"`
	Notify   NotifyConfig                          `json:"notify" yaml:"notify"`
	Market   MarketConfig                          `json:"market" yaml:"market"`
}

// AccountConfig seeds the persistent account state on first run.
type AccountConfig struct {
	InitialBalanceUSD float64 `json:"initial_balance_usd" yaml:"initial_balance_usd"`
	QuoteAsset        string  `json:"quote_asset" yaml:"quote_asset"`
}

// UniverseConfig fixes the tradable symbols and scan timeframes. Order
// matters: the scanner iterates symbols then timeframes in the configured
// order, which is what makes candidate tie-breaking deterministic.
type UniverseConfig struct {
	Symbols    []string           `json:"symbols" yaml:"symbols"`
	Timeframes []market.Timeframe `json:"timeframes" yaml:"timeframes"`
}

// TimeframeProfile bounds positions opened on one timeframe.
type TimeframeProfile struct {
	MaxStopPct  float64 `json:"max_stop_pct" yaml:"max_stop_pct"` // cap on risk distance, fraction of entry
	MaxTPPct    float64 `json:"max_tp_pct" yaml:"max_tp_pct"`     // cap on take-profit, fraction of entry
	StaleHours  float64 `json:"stale_hours" yaml:"stale_hours"`   // eviction age
	ProgressPct float64 `json:"progress_pct" yaml:"progress_pct"` // unrealized fraction that earns a stay
}

// RiskConfig holds portfolio-wide limits.
type RiskConfig struct {
	MaxExposurePct     float64 `json:"max_exposure_pct" yaml:"max_exposure_pct"`
	MinOrderUSD        float64 `json:"min_order_usd" yaml:"min_order_usd"`
	CooldownHours      float64 `json:"cooldown_hours" yaml:"cooldown_hours"`
	ReconcileTolerance float64 `json:"reconcile_tolerance" yaml:"reconcile_tolerance"`
	HistoryLimit       int     `json:"history_limit" yaml:"history_limit"`

	// BalancesFile points at an exchange balance export (JSON, asset to
	// free/locked). Empty disables reconciliation.
	BalancesFile string `json:"balances_file,omitempty" yaml:"balances_file,omitempty"`
}

// ExitConfig holds the manager's score-based and protective exit knobs.
type ExitConfig struct {
	AbsoluteScoreFloor float64 `json:"absolute_score_floor" yaml:"absolute_score_floor"`
	ScoreDecayFraction float64 `json:"score_decay_fraction" yaml:"score_decay_fraction"`
	ScoreDecayClosePct float64 `json:"score_decay_close_pct" yaml:"score_decay_close_pct"`
	ProtectionEnabled  bool    `json:"protection_enabled" yaml:"protection_enabled"`
	ProtectionPeakPct  float64 `json:"protection_peak_pct" yaml:"protection_peak_pct"`
	ProtectionDropPct  float64 `json:"protection_drop_pct" yaml:"protection_drop_pct"`
	ProtectionClosePct float64 `json:"protection_close_pct" yaml:"protection_close_pct"`
	StayOfExecution    float64 `json:"stay_of_execution_score" yaml:"stay_of_execution_score"`
}

// DCAConfig governs averaging down into losing positions.
type DCAConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	MaxEntries    int     `json:"max_entries" yaml:"max_entries"`
	CooldownHours float64 `json:"cooldown_hours" yaml:"cooldown_hours"`
	DropPct       float64 `json:"drop_pct" yaml:"drop_pct"` // fall vs last entry that arms a tranche
	MinScore      float64 `json:"min_score" yaml:"min_score"`
	Multiplier    float64 `json:"multiplier" yaml:"multiplier"`
}

// StateConfig locates the persisted account document.
type StateConfig struct {
	Path     string `json:"path" yaml:"path"`
	LockPath string `json:"lock_path,omitempty" yaml:"lock_path,omitempty"`
	Backups  int    `json:"backups" yaml:"backups"`
}

// JournalConfig selects the closed-trade audit backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// NotifyConfig configures the webhook notifier. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL      string  `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	ThrottleMinutes float64 `json:"throttle_minutes" yaml:"throttle_minutes"`
}

// MarketConfig configures the candle/indicator provider.
type MarketConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	CandleLimit    int    `json:"candle_limit" yaml:"candle_limit"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retries        int    `json:"retries" yaml:"retries"`
}

// LoadFromFile loads configuration from a YAML or JSON file. Defaults are
// applied first, so a partial file only overrides what it names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, YAML unless the extension says JSON.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Catalog builds the validated tactic catalog: the configured tactics if any
// were given, otherwise the built-in set.
func (c *Config) Catalog() (*tactic.Catalog, error) {
	if len(c.Tactics) == 0 {
		return tactic.Default(), nil
	}
	return tactic.NewCatalog(c.Tactics)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Account.InitialBalanceUSD <= 0 {
		return fmt.Errorf("account.initial_balance_usd must be positive")
	}
	if len(c.Universe.Symbols) == 0 {
		return fmt.Errorf("universe.symbols is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Universe.Symbols {
		if s == "" {
			return fmt.Errorf("universe.symbols contains an empty symbol")
		}
		if seen[s] {
			return fmt.Errorf("universe.symbols contains %s twice", s)
		}
		seen[s] = true
	}
	if len(c.Universe.Timeframes) == 0 {
		return fmt.Errorf("universe.timeframes is required")
	}
	for _, tf := range c.Universe.Timeframes {
		if !tf.Known() {
			return fmt.Errorf("unknown timeframe %q", tf)
		}
		p, ok := c.Profiles[tf]
		if !ok {
			return fmt.Errorf("timeframe %s has no profile", tf)
		}
		if p.MaxStopPct <= 0 || p.MaxTPPct <= 0 {
			return fmt.Errorf("timeframe %s: max_stop_pct and max_tp_pct must be positive", tf)
		}
		if p.StaleHours <= 0 {
			return fmt.Errorf("timeframe %s: stale_hours must be positive", tf)
		}
	}
	for z, pct := range c.Capital {
		if _, err := zone.Parse(string(z)); err != nil {
			return fmt.Errorf("zone_capital_pct: %w", err)
		}
		if pct < 0 || pct > 1 {
			return fmt.Errorf("zone_capital_pct[%s] must be in [0,1]", z)
		}
	}
	if c.Risk.MaxExposurePct <= 0 || c.Risk.MaxExposurePct > 1 {
		return fmt.Errorf("risk.max_exposure_pct must be in (0,1]")
	}
	if c.Risk.MinOrderUSD < 0 {
		return fmt.Errorf("risk.min_order_usd must not be negative")
	}
	if c.Risk.ReconcileTolerance <= 0 || c.Risk.ReconcileTolerance > 1 {
		return fmt.Errorf("risk.reconcile_tolerance must be in (0,1]")
	}
	if c.Risk.HistoryLimit <= 0 {
		return fmt.Errorf("risk.history_limit must be positive")
	}
	// the reconciler strips the quote asset off pair symbols; an empty
	// quote suffix would flag every position as desynchronized
	if c.Risk.BalancesFile != "" && c.Account.QuoteAsset == "" {
		return fmt.Errorf("risk.balances_file requires account.quote_asset")
	}
	if c.Exits.ScoreDecayFraction <= 0 || c.Exits.ScoreDecayFraction >= 1 {
		return fmt.Errorf("exits.score_decay_fraction must be in (0,1)")
	}
	if c.Exits.ScoreDecayClosePct <= 0 || c.Exits.ScoreDecayClosePct >= 1 {
		return fmt.Errorf("exits.score_decay_close_pct must be in (0,1)")
	}
	if c.Exits.ProtectionEnabled {
		if c.Exits.ProtectionClosePct <= 0 || c.Exits.ProtectionClosePct >= 1 {
			return fmt.Errorf("exits.protection_close_pct must be in (0,1)")
		}
		if c.Exits.ProtectionPeakPct <= 0 || c.Exits.ProtectionDropPct <= 0 {
			return fmt.Errorf("exits protection trigger/drop must be positive")
		}
	}
	if c.DCA.Enabled {
		if c.DCA.MaxEntries <= 0 {
			return fmt.Errorf("dca.max_entries must be positive")
		}
		if c.DCA.DropPct <= 0 {
			return fmt.Errorf("dca.drop_pct must be positive")
		}
		if c.DCA.Multiplier <= 0 {
			return fmt.Errorf("dca.multiplier must be positive")
		}
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalanceUSD: 10000,
			QuoteAsset:        "USDT",
		},
		Universe: UniverseConfig{
			Symbols:    []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			Timeframes: []market.Timeframe{market.TF1h, market.TF4h},
		},
		Profiles: map[market.Timeframe]TimeframeProfile{
			market.TF15m: {MaxStopPct: 0.015, MaxTPPct: 0.04, StaleHours: 12, ProgressPct: 0.10},
			market.TF1h:  {MaxStopPct: 0.03, MaxTPPct: 0.08, StaleHours: 48, ProgressPct: 0.20},
			market.TF4h:  {MaxStopPct: 0.05, MaxTPPct: 0.15, StaleHours: 120, ProgressPct: 0.25},
			market.TF1d:  {MaxStopPct: 0.08, MaxTPPct: 0.25, StaleHours: 336, ProgressPct: 0.30},
		},
		Capital: map[zone.Zone]float64{
			zone.Leading:    0.05,
			zone.Coincident: 0.065,
			zone.Lagging:    0.04,
			zone.Noise:      0,
		},
		Risk: RiskConfig{
			MaxExposurePct:     0.30,
			MinOrderUSD:        10,
			CooldownHours:      4,
			ReconcileTolerance: 0.95,
			HistoryLimit:       200,
		},
		Exits: ExitConfig{
			AbsoluteScoreFloor: 3.0,
			ScoreDecayFraction: 0.60,
			ScoreDecayClosePct: 0.50,
			ProtectionEnabled:  true,
			ProtectionPeakPct:  0.05,
			ProtectionDropPct:  0.03,
			ProtectionClosePct: 0.50,
			StayOfExecution:    6.5,
		},
		DCA: DCAConfig{
			Enabled:       true,
			MaxEntries:    2,
			CooldownHours: 12,
			DropPct:       0.04,
			MinScore:      6.0,
			Multiplier:    1.0,
		},
		State: StateConfig{
			Path:    "./spotbot-state.json",
			Backups: 3,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./spotbot-journal.db",
		},
		Notify: NotifyConfig{
			ThrottleMinutes: 30,
		},
		Market: MarketConfig{
			BaseURL:        "https://api.binance.com",
			CandleLimit:    200,
			TimeoutSeconds: 10,
			Retries:        2,
		},
	}
}
