package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("SKILLET")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillet")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "skillet",
	Short: "Skill resolution and context budget engine",
	Long: `Skillet resolves which skill documents an assistant should load for a
conversation: it matches trigger descriptions against a query, selects
whole documents under a token budget, and expands reference files
through progressive disclosure. The CLI inspects and exercises a skill
catalog without calling any AI provider.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil && quiet {
			presenter.SetQuiet(true)
		}
		if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				presenter.Warning("Invalid log level, using default")
			}
		}
		// Bind only flags the user set, so untouched flag defaults do not
		// shadow config-file values.
		if cmd.Flags().Changed("root") {
			viper.BindPFlag("catalog_roots", cmd.Flags().Lookup("root"))
		}
		if cmd.Flags().Changed("budget") {
			viper.BindPFlag("budget_tokens", cmd.Flags().Lookup("budget"))
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSlice("root", nil, "Catalog root directory (repeatable, overrides config)")
	rootCmd.PersistentFlags().Int("budget", 0, "Token budget ceiling (overrides config)")

	shutdown, err := initTracing(ctx)
	if err != nil {
		presenter.Warning("Failed to initialize tracing, continuing without it")
	} else {
		defer shutdown(ctx)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "Command failed")
		os.Exit(1)
	}
}
