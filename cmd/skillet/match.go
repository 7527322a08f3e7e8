package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/matcher"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type MatchConfig struct {
	Limit int
}

func NewMatchConfig() *MatchConfig {
	return &MatchConfig{
		Limit: 0,
	}
}

var matchCmd = &cobra.Command{
	Use:   "match <query>",
	Short: "Rank catalog skills against a query",
	Long: `Score every skill's trigger description and tags against the query and
print the ranked candidates. Useful for checking why a skill does or
does not fire for a given conversation.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		matchConfig := getMatchConfigFromFlags(cmd)
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		store, _, err := buildStore(ctx, cfg)
		if err != nil {
			presenter.Error(err, "Failed to build catalog")
			os.Exit(1)
		}

		m := matcher.New(matcher.WithWeights(cfg.MatcherWeights()))
		candidates := m.Match(query, store.Index())
		if len(candidates) == 0 {
			presenter.Info("No skills matched the query")
			return
		}
		if matchConfig.Limit > 0 && len(candidates) > matchConfig.Limit {
			candidates = candidates[:matchConfig.Limit]
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SCORE\tNAME\tCATEGORY\tMATCHED CLAUSES")
		fmt.Fprintln(tw, "-----\t----\t--------\t---------------")
		for _, c := range candidates {
			clauses := strings.Join(c.MatchedClauses, "; ")
			if len(clauses) > 70 {
				clauses = clauses[:67] + "..."
			}
			fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\n", c.Score, c.Doc.ID, c.Doc.Category, clauses)
		}
		tw.Flush()
	},
}

func init() {
	defaults := NewMatchConfig()
	matchCmd.Flags().IntP("limit", "n", defaults.Limit, "Show at most this many candidates (0 shows all)")
	rootCmd.AddCommand(withTracing(matchCmd))
}

func getMatchConfigFromFlags(cmd *cobra.Command) *MatchConfig {
	matchConfig := NewMatchConfig()
	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		matchConfig.Limit = limit
	}
	return matchConfig
}
