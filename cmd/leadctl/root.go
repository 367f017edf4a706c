package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanlanch/leadscope/config"
	"github.com/jordanlanch/leadscope/pkg/app"
	"github.com/jordanlanch/leadscope/pkg/logger"
)

var (
	logLevel string

	// openApp is swapped in tests
	openApp = func(cfg *config.Config) (*app.App, error) {
		return app.New(cfg, logger.NewWithWriter(cfg.LogLevel, os.Stderr), nil)
	}
)

var rootCmd = &cobra.Command{
	Use:           "leadctl",
	Short:         "LeadScope operator tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(migrateCmd, searchCmd, scrapeCmd, rankCmd, seedCmd, usageCmd, tokenCmd, revokeCmd)
}

// withApp loads configuration, opens the services and closes them after fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
