package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aegis-gateway",
	Short: "Industrial telemetry gateway: tag sources in, MQTT/NATS documents out",
	Long: `aegis-gateway collects tag definitions and readings, resolves their
devices and collections, and publishes DeviceInfo, TagConfiguration and
TagValues documents to a broker under <serial>/<document>.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aegis-gateway: %v\n", err)
		os.Exit(1)
	}
}
