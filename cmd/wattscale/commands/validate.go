package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wattscale/wattscale/internal/config"
)

// validateCmd checks a configuration file without starting the loop
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("configuration ok: %d services, budget %.1fW, tick %s\n",
			len(cfg.Services), cfg.PowerBudgetWatts, cfg.TickInterval)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
