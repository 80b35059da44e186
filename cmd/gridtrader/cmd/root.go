package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridtrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "gridtrader",
	Short: "Layered position accumulation with adaptive exits",
	Long: `Gridtrader scales into a position in layers as price moves against it
and exits the whole side on a money target, a breakeven lock or a trailing
stop.

It provides tools for:
  - Replaying candle data through the engine against a simulated venue
  - Generating and validating configuration files
  - Querying the trade journal

Every config key can be overridden from the environment with the
GRIDTRADER_ prefix, e.g. GRIDTRADER_GRID_MAX_LAYERS=3.`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
}

// loadConfig reads --config, or the defaults, with environment overrides.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.LoadDefaults()
	}
	return config.LoadFromFile(cfgFile)
}
