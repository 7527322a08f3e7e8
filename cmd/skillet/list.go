package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type ListConfig struct {
	Category string
}

func NewListConfig() *ListConfig {
	return &ListConfig{
		Category: "",
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every skill in the catalog",
	Long:  `List the indexed skills with their category, token cost and reference counts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		listConfig := getListConfigFromFlags(cmd)
		ctx := cmd.Context()

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

		idx := store.Index()
		if idx.Len() == 0 {
			presenter.Info("No skills in the catalog")
			return
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCATEGORY\tTOKENS\tREFS\tTRIGGER")
		fmt.Fprintln(tw, "----\t--------\t------\t----\t-------")

		shown := 0
		for _, doc := range idx.All() {
			if listConfig.Category != "" && string(doc.Category) != listConfig.Category {
				continue
			}
			trigger := doc.Trigger
			if len(trigger) > 60 {
				trigger = trigger[:57] + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\n",
				doc.ID, doc.Category, doc.Tokens,
				len(doc.DeclaredReferences()), len(doc.References), trigger)
			shown++
		}
		tw.Flush()

		if listConfig.Category != "" && shown == 0 {
			presenter.Info(fmt.Sprintf("No skills in category %q", listConfig.Category))
		}
	},
}

func init() {
	defaults := NewListConfig()
	listCmd.Flags().StringP("category", "c", defaults.Category, "Only list skills in this category (stack, domain, meta)")
	rootCmd.AddCommand(withTracing(listCmd))
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	listConfig := NewListConfig()
	if category, err := cmd.Flags().GetString("category"); err == nil {
		listConfig.Category = category
	}
	return listConfig
}
