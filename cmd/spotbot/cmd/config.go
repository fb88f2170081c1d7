package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spotbot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or generate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Write the default configuration to a file",
	Long: `Write the built-in default configuration to PATH as YAML (or JSON if
the extension is .json), ready to edit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}
		if err := config.Default().SaveToFile(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			return fmt.Errorf("no config file given, use --config")
		}
		cfg, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return err
		}
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		fmt.Printf("%s is valid: %d symbols, %d timeframes, %d tactics\n",
			cfgPath, len(cfg.Universe.Symbols), len(cfg.Universe.Timeframes), len(catalog.All()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
