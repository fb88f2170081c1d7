package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"spotbot/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently closed positions",
	RunE:  runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "how many closed positions to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return withLockedState(cfg, func(store *state.Store) error {
		acct, err := store.Load()
		if err != nil {
			return err
		}

		if len(acct.History) == 0 {
			fmt.Println("No closed positions.")
			return nil
		}

		// History is append-ordered; show the most recent first.
		shown := 0
		var total float64
		for i := len(acct.History) - 1; i >= 0 && shown < historyLimit; i-- {
			p := acct.History[i]
			fmt.Printf("%s  %s %s [%s] %s\n", p.ClosedAt.Format("2006-01-02 15:04"),
				p.Symbol, p.Timeframe, p.Tactic, p.CloseReason())
			fmt.Printf("  entry %.4f exit %.4f  invested $%.2f  pnl $%.2f\n",
				p.EntryPrice, p.ExitPrice, p.InvestedUSD, p.RealizedUSD)
			total += p.RealizedUSD
			shown++
		}
		fmt.Printf("\n%d positions,total P&L $%.2f\n", shown, total)
		return nil
	})
}
