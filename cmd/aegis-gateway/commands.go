package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/AegisGate/pkg/aegisgate"
)

var (
	configPath    string
	statsURL      string
	statsInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway using the provided config",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flow, err := aegisgate.Conf(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return flow.Run(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a config file without starting the gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := aegisgate.LoadConfig(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good (gateway %s, broker %s)\n",
			configPath, cfg.Gateway.SerialNumber, cfg.Broker.URL)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Poll the Prometheus metrics endpoint and print live counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return streamStats(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), statsURL, statsInterval)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, validateCmd, statsCmd)

	runCmd.Flags().StringVarP(&configPath, "config", "c", "./data/config.yaml", "Path to gateway configuration file")
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "./data/config.yaml", "Path to configuration file to validate")

	statsCmd.Flags().StringVar(&statsURL, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	statsCmd.Flags().DurationVar(&statsInterval, "interval", 2*time.Second, "Refresh interval")
}

