// Package cli implements the campusqa command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"campusqa/internal/config"
	"campusqa/internal/logger"
)

var (
	cfgPath string
	verbose bool

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "campusqa",
	Short: "Question answering over a school website",
	Long: `campusqa crawls a school website, indexes its pages as embedded passages and
answers questions from them with a local language model.

Typical flow: crawl -> tag -> chunk -> index (or ingest for the last three),
then ask, chat or serve.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config (default ./campusqa.yaml or ~/.config/campusqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger.InitWriter(cfg.Log, cmd.ErrOrStderr())
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
