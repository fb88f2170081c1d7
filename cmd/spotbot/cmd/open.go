package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"spotbot/engine"
	"spotbot/market"
	"spotbot/state"
)

var openCmd = &cobra.Command{
	Use:   "open SYMBOL TIMEFRAME",
	Short: "Manually open a position",
	Long: `Open a position by hand through the same sizing, capping, and
record-keeping path the automated scanner uses. The current market snapshot
is fetched and scored; sizing, stop, and target come from the tactic and
the timeframe profile, exactly as for an automated entry.

Example:
  spotbot open BTCUSDT 1h --tactic breakout-rider`,
	Args: cobra.ExactArgs(2),
	RunE: runOpen,
}

var openTactic string

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVar(&openTactic, "tactic", "", "tactic to open with (default: first eligible for the zone)")
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	symbol := args[0]
	tf := market.Timeframe(args[1])
	if !tf.Known() {
		return fmt.Errorf("unknown timeframe %q", args[1])
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

	ctx := cmd.Context()
	c, err := eng.BuildCandidate(ctx, symbol, tf, openTactic)
	if err != nil {
		return err
	}
	fmt.Printf("Candidate: %s %s tactic %s zone %s score %.2f at %.4f\n",
		c.Symbol, c.Timeframe, c.Tactic.Name, c.Zone, c.Score, c.Snapshot.Price)

	return withLockedState(cfg, func(store *state.Store) error {
		acct, err := store.Load()
		if err != nil {
			return err
		}

		pos, rej, err := eng.OpenPosition(ctx, acct, *c, engine.ActorManual, nil)
		if err != nil {
			return err
		}
		if rej != nil {
			return fmt.Errorf("declined (%s): %s", rej.Code, rej.Reason)
		}
		if err := store.Save(acct); err != nil {
			return err
		}
		fmt.Printf("Opened %s: $%.2f at %.4f, sl %.4f tp %.4f\n",
			pos.ID, pos.InvestedUSD, pos.EntryPrice, pos.StopLoss, pos.TakeProfit)
		return nil
	})
}
