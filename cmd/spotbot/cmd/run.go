package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"spotbot/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine cycle, once or on an interval",
	Long: `Run one full engine cycle: fetch indicators for the universe, manage
open positions through the exit rules, reconcile against external balances,
scan for one new entry, and persist the account state.

With --interval the cycle repeats until interrupted. The state lock is
held only while a cycle executes, so manual commands can run between
cycles.

Example:
  spotbot run -f config.yaml --interval 15m`,
	RunE: runRun,
}

var (
	runInterval time.Duration
	runDryRun   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "repeat cycles at this interval (0 runs once)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "evaluate and log but do not persist state")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	eng, err := buildEngine(cfg, j)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cycle := func() error {
		return withLockedState(cfg, func(store *state.Store) error {
			report, err := eng.Cycle(ctx, store, runDryRun)
			if err != nil {
				return err
			}
			log.Info().
				Int("snapshots_ok", report.SnapshotsOK).
				Int("snapshots_failed", report.SnapshotsFail).
				Int("desynced", len(report.Desynced)).
				Str("opened", report.Opened).
				Int("open_positions", report.OpenPositions).
				Float64("cash_usd", report.CashUSD).
				Float64("equity_usd", report.EquityUSD).
				Msg("cycle complete")
			return nil
		})
	}

	if err := cycle(); err != nil {
		return err
	}
	if runInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("interrupted, shutting down")
			return nil
		case <-ticker.C:
			if err := cycle(); err != nil {
				// a fatal cycle (corrupt state) stops the loop; the
				// operator has already been notified
				return err
			}
		}
	}
}
