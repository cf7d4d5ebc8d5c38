package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-best-shot/internal/config"
	"go-best-shot/internal/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "bestshot",
	Short: "Pick the best shot of every duplicate group",
	Long: `bestshot scores the members of duplicate photo groups and picks a winner.

Each asset is scored on sharpness (Laplacian variance), exposure, composition
and, when the photo service provides them, faces and scene tags. The winner of
a group can be favorited, and the alternates hidden, deleted or filed into an
album.

Example usage:
  bestshot run                          # Dry run with the configured mode
  bestshot run --mode hide --dry-run=false
  bestshot score ./IMG_0001.jpg --faces 2 --tags portrait
  bestshot import-groups groups.json    # Store groups in the local database`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults to $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// loadConfig loads the layered configuration and applies the logging flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	logger.SetOutput(os.Stderr)
	return cfg, nil
}
