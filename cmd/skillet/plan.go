package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/engine"
	"github.com/jingkaihe/skillet/pkg/history"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type PlanConfig struct {
	Assemble bool
	History  bool
}

func NewPlanConfig() *PlanConfig {
	return &PlanConfig{
		Assemble: false,
		History:  false,
	}
}

var planCmd = &cobra.Command{
	Use:   "plan <query>",
	Short: "Run the full resolution pipeline for a query",
	Long: `Match, allocate and expand in one pass: print which skills a query
loads, the references included or deferred, and the budget consumed.
With --assemble the final context payload is printed as well.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		planConfig := getPlanConfigFromFlags(cmd)
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

		engineOpts := []engine.Option{engine.WithConfig(cfg)}
		if cfg.History.Enabled || planConfig.History {
			if recorder, err := history.NewStore(ctx, cfg.History.DBPath); err != nil {
				presenter.Warning("Failed to open history database, continuing without it")
			} else {
				defer recorder.Close()
				engineOpts = append(engineOpts, engine.WithRecorder(recorder))
			}
		}

		eng := engine.New(store, engineOpts...)
		session := eng.NewSession()

		plan, err := session.Resolve(ctx, query)
		if err != nil {
			var exceeded *budget.BudgetExceededError
			if errors.As(err, &exceeded) {
				presenter.Warning(fmt.Sprintf(
					"Top candidate %s needs %d tokens but the budget is %d; load its summary or narrow the query",
					exceeded.SkillID, exceeded.Tokens, exceeded.Budget))
				os.Exit(1)
			}
			presenter.Error(err, "Failed to resolve query")
			os.Exit(1)
		}

		if len(plan.Entries) == 0 {
			presenter.Info("No skills matched within the budget")
			return
		}

		presenter.Section("Load plan")
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCATEGORY\tTOKENS\tREFERENCES")
		fmt.Fprintln(tw, "----\t--------\t------\t----------")
		for _, entry := range plan.Entries {
			refs := make([]string, 0, len(entry.References))
			for _, ref := range entry.References {
				refs = append(refs, ref.Name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", entry.Doc.ID, entry.Doc.Category, entry.Doc.Tokens, strings.Join(refs, ", "))
		}
		tw.Flush()

		if len(plan.Deferred) > 0 {
			presenter.Section("Deferred references")
			for _, deferred := range plan.Deferred {
				presenter.Info(fmt.Sprintf("  %s: %s (%d tokens, %s)", deferred.SkillID, deferred.Name, deferred.Tokens, deferred.Reason))
			}
		}

		presenter.Plan(&presenter.PlanStats{
			Skills:          len(plan.Entries),
			References:      plan.ReferenceCount(),
			Deferred:        len(plan.Deferred),
			ConsumedTokens:  plan.Consumed,
			BudgetTokens:    plan.Budget,
			RemainderTokens: plan.Remainder(),
		})

		if planConfig.Assemble {
			payload, err := eng.Assemble(ctx, plan)
			if err != nil {
				presenter.Error(err, "Failed to assemble payload")
				os.Exit(1)
			}
			presenter.Separator()
			fmt.Print(payload)
		}
	},
}

func init() {
	defaults := NewPlanConfig()
	planCmd.Flags().Bool("assemble", defaults.Assemble, "Print the assembled context payload")
	planCmd.Flags().Bool("history", defaults.History, "Record this resolution in the history database even when disabled in config")
	rootCmd.AddCommand(withTracing(planCmd))
}

func getPlanConfigFromFlags(cmd *cobra.Command) *PlanConfig {
	planConfig := NewPlanConfig()
	if assemble, err := cmd.Flags().GetBool("assemble"); err == nil {
		planConfig.Assemble = assemble
	}
	if recordHistory, err := cmd.Flags().GetBool("history"); err == nil {
		planConfig.History = recordHistory
	}
	return planConfig
}
