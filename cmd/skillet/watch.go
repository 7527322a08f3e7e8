package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type WatchConfig struct {
	Debounce time.Duration
}

func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		Debounce: 500 * time.Millisecond,
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the catalog roots and rebuild on change",
	Long: `Watch the catalog roots for skill document changes and rebuild the
index whenever a change settles. A failed rebuild keeps the previous
index; press Ctrl-C to stop.`,
	Run: func(cmd *cobra.Command, _ []string) {
		watchConfig := getWatchConfigFromFlags(cmd)
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		store, builder, err := buildStore(ctx, cfg)
		if err != nil {
			presenter.Error(err, "Failed to build catalog")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Catalog built: %d skill(s)", store.Index().Len()))

		watcher := catalog.NewWatcher(store, builder,
			catalog.WithDebounce(watchConfig.Debounce),
			catalog.WithOnSwap(func(old, next *catalog.Index) {
				presenter.Info(fmt.Sprintf("Catalog rebuilt: %d skill(s) (was %d), generation %d",
					next.Len(), old.Len(), next.Generation()))
			}),
		)

		if err := watcher.Run(ctx); err != nil {
			presenter.Error(err, "Catalog watcher failed")
			os.Exit(1)
		}
		logger.G(ctx).Info("catalog watcher stopped")
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().Duration("debounce", defaults.Debounce, "How long to wait for file changes to settle before rebuilding")
	rootCmd.AddCommand(withTracing(watchCmd))
}

func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	watchConfig := NewWatchConfig()
	if debounce, err := cmd.Flags().GetDuration("debounce"); err == nil && debounce > 0 {
		watchConfig.Debounce = debounce
	}
	return watchConfig
}
