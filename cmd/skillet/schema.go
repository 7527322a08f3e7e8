package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/monitor"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T

	return reflector.Reflect(v)
}

var schemaSubjects = map[string]func() *jsonschema.Schema{
	"config":   generateSchema[config.Config],
	"plan":     generateSchema[budget.LoadPlan],
	"advisory": generateSchema[monitor.Advisory],
	"snapshot": generateSchema[monitor.Snapshot],
}

var schemaCmd = &cobra.Command{
	Use:   "schema <subject>",
	Short: "Print the JSON schema for a machine-readable output",
	Long: `Print the JSON schema for one of skillet's machine-readable shapes, for
editor validation or downstream tooling. Subjects: config, plan,
advisory, snapshot.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		generate, ok := schemaSubjects[args[0]]
		if !ok {
			subjects := make([]string, 0, len(schemaSubjects))
			for subject := range schemaSubjects {
				subjects = append(subjects, subject)
			}
			sort.Strings(subjects)
			presenter.Error(errors.Errorf("unknown subject %q, expected one of: %s", args[0], strings.Join(subjects, ", ")), "Failed to generate schema")
			os.Exit(1)
		}

		data, err := json.MarshalIndent(generate(), "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to generate schema")
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
