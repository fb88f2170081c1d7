package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spotbot/engine"
	"spotbot/state"
)

var extendCmd = &cobra.Command{
	Use:   "extend POSITION_ID",
	Short: "Grant a staleness stay for a position",
	Long: `Suppress staleness eviction for a position until the given duration
from now has passed. Every other exit rule keeps applying; only the
age-based eviction is stayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtend,
}

var extendFor time.Duration

func init() {
	rootCmd.AddCommand(extendCmd)
	extendCmd.Flags().DurationVar(&extendFor, "for", 48*time.Hour, "how long to stay eviction from now")
}

func runExtend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// state-only mutation: no market access needed, but the engine owns
	// the tagging convention
	eng, err := buildEngine(cfg, nil)
	if err != nil {
		return err
	}

	return withLockedState(cfg, func(store *state.Store) error {
		acct, err := store.Load()
		if err != nil {
			return err
		}

		until := time.Now().UTC().Add(extendFor)
		if err := eng.ExtendStale(acct, args[0], until, engine.ActorManual); err != nil {
			return err
		}
		if err := store.Save(acct); err != nil {
			return err
		}
		fmt.Printf("Position %s stayed until %s\n", args[0], until.Format(time.RFC3339))
		return nil
	})
}
