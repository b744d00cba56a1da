package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dcarrith/chaimcp/internal/composition/gateway"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// flagEnv maps command-line flags onto the environment variables they override.
var flagEnv = map[string]string{
	"transport":      "MCP_TRANSPORT",
	"host":           "MCP_HOST",
	"port":           "MCP_PORT",
	"chia-root":      "CHIA_ROOT",
	"disabled-tools": "MCP_DISABLED_TOOLS",
	"log-level":      "MCP_LOG_LEVEL",
	"log-format":     "MCP_LOG_FORMAT",
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chaimcp",
		Short:         "MCP gateway for a local Chia full node, wallet and DataLayer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := rootCmd.PersistentFlags()
	flags.String("transport", "", "Transport: stdio, sse or http (env MCP_TRANSPORT)")
	flags.String("host", "", "Listen host for sse/http (env MCP_HOST)")
	flags.String("port", "", "Listen port for sse/http (env MCP_PORT)")
	flags.String("chia-root", "", "Chia root directory (env CHIA_ROOT)")
	flags.String("disabled-tools", "", "Comma-separated tools to hide (env MCP_DISABLED_TOOLS)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (env MCP_LOG_LEVEL)")
	flags.String("log-format", "", "Log format: json or text (env MCP_LOG_FORMAT)")

	toolsCmd := &cobra.Command{
		Use:          "tools",
		Short:        "List the tools this configuration exposes",
		SilenceUsage: true,
		RunE:         runTools,
	}
	toolsCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(toolsCmd)
	return rootCmd
}

// settingsLookup prefers explicitly set flags over the process environment.
func settingsLookup(cmd *cobra.Command, env func(string) string) func(string) string {
	overrides := make(map[string]string)
	for flag, key := range flagEnv {
		f := cmd.Flag(flag)
		if f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	return func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}
		return env(key)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := gateway.LoadSettings(settingsLookup(cmd, os.Getenv))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// stdout carries the stdio transport, so logs always go to stderr.
	logger, err := privacylog.NewLogger(os.Stderr, settings.LogLevel, settings.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = gateway.Run(ctx, settings, version, logger, gateway.IO{Stdin: os.Stdin, Stdout: os.Stdout})
	logger.Info("gateway stopped", "component", "gateway")
	return err
}

type toolRow struct {
	Name     string `json:"name"`
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Enabled  bool   `json:"enabled"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	settings, err := gateway.LoadSettings(settingsLookup(cmd, os.Getenv))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	return printTools(cmd.OutOrStdout(), operations.Catalog(), settings.Disabled, jsonMode)
}

func printTools(w io.Writer, catalog []operations.Operation, disabled operations.DisabledSet, jsonMode bool) error {
	rows := make([]toolRow, 0, len(catalog))
	for _, op := range catalog {
		rows = append(rows, toolRow{
			Name:     op.Name,
			Service:  op.Service,
			Endpoint: op.BackendEndpoint(),
			Enabled:  !disabled.Contains(op.Name),
		})
	}
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSERVICE\tENDPOINT\tENABLED")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", row.Name, row.Service, row.Endpoint, row.Enabled)
	}
	return tw.Flush()
}
