package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/config"
	"github.com/v0xg/sessionrec/internal/store"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	// Load .env file if present (silently ignore if not found)
	config.LoadEnv()

	rootCmd := &cobra.Command{
		Use:   "sessionrec",
		Short: "Record browser sessions as replayable, documented action logs",
		Long: `sessionrec opens a page in Chromium and records what you do there: clicks,
typing, form submissions, navigation keys, scrolling and tooltip hovers. Every
action is captured once the page has settled, with a stable locator and a
screenshot. Sensitive values are masked before they are stored.

Example:
  sessionrec record https://myapp.com --tag smoke
  sessionrec export 3f2a --format html --summarize`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	rootCmd.AddCommand(recordCmd(), exportCmd(), listCmd(), recoverCmd(), replayCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	if cfg.Logging.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		zcfg.Level = level
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	return nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return st, nil
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
