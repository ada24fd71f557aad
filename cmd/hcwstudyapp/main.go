// Package main provides the hcwstudyapp CLI: the administrator surface
// over the store described in spec §6 (bootstrap, token issuance, REDCap
// sync, the data-quality report), plus flag/config wiring shared by
// every subcommand.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/khvorov45/hcwstudyapp/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "hcwstudyapp",
	Short:         "Administer the health-care-worker cohort study data store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.toml", "path to config.toml")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configPath, cmd.Flags())
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
