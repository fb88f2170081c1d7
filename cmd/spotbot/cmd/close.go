package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"spotbot/engine"
	"spotbot/state"
)

var closeCmd = &cobra.Command{
	Use:   "close POSITION_ID|SYMBOL",
	Short: "Manually close an open position at market",
	Long: `Close an open position through the same execution and audit path the
automated manager uses: the closing order is placed first, and only a
confirmed fill books the P&L, retires the position, and writes the journal
row.`,
	Args: cobra.ExactArgs(1),
	RunE: runClose,
}

var closeReason string

func init() {
	rootCmd.AddCommand(closeCmd)
	closeCmd.Flags().StringVar(&closeReason, "reason", "manual", "close reason recorded in the journal")
}

func runClose(cmd *cobra.Command, args []string) error {
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

	return withLockedState(cfg, func(store *state.Store) error {
		acct, err := store.Load()
		if err != nil {
			return err
		}

		pos := acct.FindPosition(args[0])
		if pos == nil {
			pos = acct.ActiveBySymbol(args[0])
		}
		if pos == nil || !pos.Active() {
			return fmt.Errorf("no active position matching %q", args[0])
		}

		if err := eng.ClosePosition(cmd.Context(), acct, pos, closeReason, engine.ActorManual); err != nil {
			return err
		}
		if err := store.Save(acct); err != nil {
			return err
		}
		fmt.Printf("Closed %s (%s): exit %.4f, total P&L $%.2f\n",
			pos.Symbol, pos.ID, pos.ExitPrice, pos.RealizedUSD)
		return nil
	})
}
