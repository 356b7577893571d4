// Command dossier turns a business question into a cited executive
// summary, a client email and action items, grounded in a local document
// index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dossier/internal/config"
	"dossier/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dossier",
	Short: "dossier - multi-stage research and drafting pipeline",
	Long: `dossier plans a request, researches it against an indexed document
collection, drafts a summary, client email and action items, then
fact-checks the draft against the evidence it retrieved.

Build the index first:
  dossier ingest ./docs

Then ask:
  dossier run "How can we reduce 30-day readmissions?" --mode executive`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		if logging.IsDebugMode() {
			logger.Debug("category logs enabled", zap.String("dir", cfg.Logging.Dir))
		}
		if _, err := os.Stat(configPath); err != nil {
			logging.BootWarn("No config at %s; using defaults", configPath)
		} else {
			logging.BootDebug("Loaded config from %s (provider=%s)", configPath, cfg.LLM.Provider)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dossier.yaml", "Path to config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext bounds a command by --timeout and cancels it on SIGINT or
// SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}
