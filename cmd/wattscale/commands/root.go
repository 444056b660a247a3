package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.2.0"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wattscale",
	Short: "Energy-aware autoscaler for microservice benchmarks",
	Long: `Wattscale is an energy-aware autoscaling controller. It samples
per-service power, request-rate and replica telemetry from Prometheus,
derives energy-per-request and efficiency indicators, classifies the
workload pattern and system contention, and scales deployments up or
down under a global power budget while suppressing oscillation with
dynamic per-service cooldowns.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}
