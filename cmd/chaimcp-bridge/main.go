package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dcarrith/chaimcp/internal/adapters/bridge"
	"github.com/dcarrith/chaimcp/internal/platform/privacylog"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "chaimcp-bridge",
		Short:         "Plaintext localhost bridge to a TLS-only MCP endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBridge,
	}
	rootCmd.Version = version
	flags := rootCmd.Flags()
	flags.String("listen", "", "Listen address (env BRIDGE_LISTEN_ADDR, default localhost:8001)")
	flags.String("target", "", "Backend URL (env BRIDGE_TARGET_URL, default https://localhost:4443/sse)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: json or text")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	logger, err := privacylog.NewLogger(os.Stderr, level, format)
	if err != nil {
		return err
	}

	cfg, err := bridge.LoadConfig(os.Getenv)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}
	if target, _ := cmd.Flags().GetString("target"); target != "" {
		cfg.TargetURL = target
	}
	proxy, err := bridge.NewProxy(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = proxy.Run(ctx)
	logger.Info("bridge stopped", "component", "bridge")
	return err
}
