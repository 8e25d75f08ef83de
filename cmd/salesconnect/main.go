package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/soochol/salesconnect/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "salesconnect",
		Short:         "OAuth integration connections for Salesforce, Outlook and HubSpot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SALESCONNECT_CONFIG"), "Path to configuration file (default ./config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newStateCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "salesconnect v%s\n", version)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
