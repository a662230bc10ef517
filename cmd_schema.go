package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/hospital-graph-rag/server/internal/agent/catalog"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

var schemaPath string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Validate the schema catalog and print it as the models see it",
	Long: `Load the schema catalog (the embedded hospital schema, ENGINE_SCHEMA_PATH,
or --path) and print the description used in query prompts. Exits non-zero
when the schema file is invalid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := schemaPath
		if path == "" {
			var engineCfg model.EngineConfig
			if err := envconfig.Process("", &engineCfg); err != nil {
				return errx.Configuration(err, "process engine config")
			}
			path = engineCfg.SchemaPath
		}

		c, err := catalog.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s\n", c.Source(), c.Describe().Describe())
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaPath, "path", "", "schema YAML file to load instead of the configured one")
}
