package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"spotbot/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the account state and open positions",
	RunE:  runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return withLockedState(cfg, func(store *state.Store) error {
		acct, err := store.Load()
		if err != nil {
			return err
		}

		invested := acct.TotalInvested(nil)
		fmt.Printf("Account (schema v%d)\n", acct.SchemaVersion)
		fmt.Printf("  Cash:     $%.2f\n", acct.CashUSD)
		fmt.Printf("  Invested: $%.2f\n", invested)
		fmt.Printf("  Equity:   $%.2f\n\n", acct.CashUSD+invested)

		open := 0
		for _, p := range acct.Positions {
			if !p.Active() {
				continue
			}
			open++
			fmt.Printf("%s  %s %s [%s]\n", p.ID, p.Symbol, p.Timeframe, p.Tactic)
			fmt.Printf("  entry %.4f  qty %.6f  invested $%.2f\n", p.EntryPrice, p.Quantity, p.InvestedUSD)
			fmt.Printf("  sl %.4f  tp %.4f  score %.2f -> %.2f  zone %s -> %s\n",
				p.StopLoss, p.TakeProfit, p.EntryScore, p.LastScore, p.EntryZone, p.LastZone)
			fmt.Printf("  opened %s  tranches %d  realized $%.2f\n",
				p.OpenedAt.Format("2006-01-02 15:04"), len(p.Entries), p.RealizedUSD)
			if !p.StaleExtendedUntil.IsZero() {
				fmt.Printf("  stale eviction stayed until %s\n", p.StaleExtendedUntil.Format("2006-01-02 15:04"))
			}
		}
		if open == 0 {
			fmt.Println("No open positions.")
		}
		return nil
	})
}
