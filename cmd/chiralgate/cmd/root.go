package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/chiralgate/internal/config"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "chiralgate",
	Short: "chiralgate screens new group members with a chiral carbon captcha",
	Long: `A OneBot companion service that asks every new group applicant to count
the chiral carbons in a molecule before they are admitted.

Settings come from an optional config file and CHIRAL_VERIFY_* environment
variables; the environment wins.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML, TOML or JSON config file")
}

// loadConfig reads settings and builds the process logger from log_level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
