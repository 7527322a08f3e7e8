package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/history"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type StatsConfig struct {
	DBPath string
	Top    int
}

func NewStatsConfig() *StatsConfig {
	return &StatsConfig{
		DBPath: "",
		Top:    10,
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics from the resolution log",
	Long: `Aggregate the resolution history: how many plans were produced, how
much of the budget they consumed on average, and which skills load most
often. Useful for spotting dead or over-firing skills in the catalog.`,
	Run: func(cmd *cobra.Command, _ []string) {
		statsConfig := getStatsConfigFromFlags(cmd)
		ctx := cmd.Context()

		dbPath := statsConfig.DBPath
		if dbPath == "" {
			cfg, err := config.Load()
			if err != nil {
				presenter.Error(err, "Invalid configuration")
				os.Exit(1)
			}
			dbPath = cfg.History.DBPath
		}

		store, err := history.NewStore(ctx, dbPath)
		if err != nil {
			presenter.Error(err, "Failed to open history database")
			os.Exit(1)
		}
		defer store.Close()

		stats, err := store.Aggregate(ctx)
		if err != nil {
			presenter.Error(err, "Failed to aggregate resolution history")
			os.Exit(1)
		}

		if stats.Resolutions == 0 {
			presenter.Info("No resolutions recorded yet")
			return
		}

		presenter.Section("Resolution history")
		presenter.Info(fmt.Sprintf("Resolutions:         %d", stats.Resolutions))
		presenter.Info(fmt.Sprintf("Sessions:            %d", stats.Sessions))
		presenter.Info(fmt.Sprintf("Deferred references: %d", stats.DeferredReferences))
		presenter.Info(fmt.Sprintf("Avg budget usage:    %.1f%%", stats.AvgUtilization*100))

		if len(stats.SkillLoads) == 0 {
			return
		}

		presenter.Section("Most loaded skills")
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tLOADS")
		fmt.Fprintln(tw, "----\t-----")
		loads := stats.SkillLoads
		if statsConfig.Top > 0 && len(loads) > statsConfig.Top {
			loads = loads[:statsConfig.Top]
		}
		for _, load := range loads {
			fmt.Fprintf(tw, "%s\t%d\n", load.SkillID, load.Loads)
		}
		tw.Flush()
	},
}

func init() {
	defaults := NewStatsConfig()
	statsCmd.Flags().String("db-path", defaults.DBPath, "Path to the history database (defaults to ~/.skillet/history.db)")
	statsCmd.Flags().Int("top", defaults.Top, "Show at most this many skills in the load table (0 shows all)")
	rootCmd.AddCommand(withTracing(statsCmd))
}

func getStatsConfigFromFlags(cmd *cobra.Command) *StatsConfig {
	statsConfig := NewStatsConfig()
	if dbPath, err := cmd.Flags().GetString("db-path"); err == nil {
		statsConfig.DBPath = dbPath
	}
	if top, err := cmd.Flags().GetInt("top"); err == nil {
		statsConfig.Top = top
	}
	return statsConfig
}
