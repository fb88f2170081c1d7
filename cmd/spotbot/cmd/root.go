package cmd

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	debug    bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "spotbot",
	Short: "A rule-driven spot position lifecycle and risk management engine",
	Long: `Spotbot scans a configured symbol universe for entry opportunities,
opens long spot positions sized by market-zone capital policy, and manages
them through a fixed precedence of exit rules: hard stops, score-based
early exits, partial profit-taking, profit protection, trailing stops, and
staleness eviction.

State lives in a single locked JSON document, so the automated cycle and
the manual subcommands (open, close, extend) can safely share an account.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real environments set variables directly
		_ = godotenv.Load()
		setupLogging()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs instead of console output")
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if !jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
