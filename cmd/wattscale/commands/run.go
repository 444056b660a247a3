package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wattscale/wattscale/internal/actuator"
	"github.com/wattscale/wattscale/internal/api"
	"github.com/wattscale/wattscale/internal/config"
	"github.com/wattscale/wattscale/internal/engine"
	"github.com/wattscale/wattscale/internal/logging"
	"github.com/wattscale/wattscale/internal/metrics"
	"github.com/wattscale/wattscale/internal/telemetry"
	"go.uber.org/zap"
)

// runCmd starts the control loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autoscaling control loop",
	Long: `Run the autoscaling control loop until interrupted.

Examples:
  # Run with default config
  wattscale run

  # Run with a specific config
  wattscale run --config experiment.yaml

  # Decide but never actuate
  wattscale run --dry-run`,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "evaluate decisions without issuing scale commands")
}

func runController(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.DryRun = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	act := actuator.NewKubectl(cfg.Actuator, logger.Named("actuator"))

	promClient, err := telemetry.NewPromClient(cfg.Telemetry.Client, logger.Named("telemetry"))
	if err != nil {
		return err
	}
	sampler := telemetry.NewSampler(
		promClient,
		act,
		cfg.Services,
		cfg.Telemetry.Client.Queries,
		cfg.Telemetry.Sampler,
		logger.Named("sampler"),
	)

	exporter := metrics.NewExporter(cfg.API.Namespace)
	controller := engine.NewController(cfg.EngineConfig(), sampler, act, exporter, logger.Named("engine"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		server := api.NewServer(cfg.API.ListenAddr, controller, exporter.Registry(), logger.Named("api"))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Status API failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				logger.Warn("Status API shutdown failed", zap.Error(err))
			}
		}()
	}

	if err := controller.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
