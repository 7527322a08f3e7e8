package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/presenter"
)

type ValidateConfig struct {
	WriteDefaults bool
	ConfigPath    string
}

func NewValidateConfig() *ValidateConfig {
	return &ValidateConfig{
		WriteDefaults: false,
		ConfigPath:    "config.yaml",
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every skill document in the catalog",
	Long: `Build the catalog and report every malformed skill document: missing
trigger clauses, invalid identifiers or categories, dangling reference
paths, and duplicate identifiers within one root.`,
	Run: func(cmd *cobra.Command, _ []string) {
		validateConfig := getValidateConfigFromFlags(cmd)
		ctx := cmd.Context()

		if validateConfig.WriteDefaults {
			if err := writeDefaultConfig(validateConfig.ConfigPath); err != nil {
				presenter.Error(err, "Failed to write starter configuration")
				os.Exit(1)
			}
			presenter.Success(fmt.Sprintf("Wrote starter configuration to %s", validateConfig.ConfigPath))
			return
		}

		cfg, err := config.Load()
		if err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		builder, err := newBuilder(cfg)
		if err != nil {
			presenter.Error(err, "Failed to initialize catalog builder")
			os.Exit(1)
		}

		idx, err := builder.Build(ctx)
		if err != nil {
			var catalogErr *catalog.CatalogError
			if errors.As(err, &catalogErr) {
				presenter.Error(errors.Errorf("%d skill document(s) failed validation", len(catalogErr.Failures())), "Catalog is invalid")
				for _, failure := range catalogErr.Failures() {
					presenter.Info(fmt.Sprintf("  - %v", failure))
				}
			} else {
				presenter.Error(err, "Failed to build catalog")
			}
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Catalog is valid: %d skill(s)", idx.Len()))
	},
}

func init() {
	defaults := NewValidateConfig()
	validateCmd.Flags().Bool("write-defaults", defaults.WriteDefaults, "Write a starter config.yaml with the default settings instead of validating")
	validateCmd.Flags().String("config-path", defaults.ConfigPath, "Where to write the starter configuration")
	rootCmd.AddCommand(withTracing(validateCmd))
}

func getValidateConfigFromFlags(cmd *cobra.Command) *ValidateConfig {
	validateConfig := NewValidateConfig()
	if writeDefaults, err := cmd.Flags().GetBool("write-defaults"); err == nil {
		validateConfig.WriteDefaults = writeDefaults
	}
	if configPath, err := cmd.Flags().GetString("config-path"); err == nil {
		validateConfig.ConfigPath = configPath
	}
	return validateConfig
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("%s already exists, refusing to overwrite", path)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return errors.Wrap(err, "failed to marshal default configuration")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write configuration file")
}
