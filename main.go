package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hospital-graph-rag/server/internal/core"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

const serviceName = "hospital-graph-rag"

var (
	envFile     string
	metricsAddr string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "hospital-rag",
	Short: "Answer questions over the hospital knowledge graph and patient reviews",
	Long: `hospital-rag routes each question through a Cypher query tool over the
hospital graph and a semantic search over patient reviews, then writes one
grounded answer as JSON.

Configuration comes from the environment, optionally loaded from an env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := godotenv.Load(envFile)
		logx.Init(logx.LoggerOpts{
			Environment: core.ParseEnvironment(os.Getenv("APP_ENV")),
			Service:     serviceName,
		})
		if envErr != nil && cmd.Flags().Changed("env-file") {
			logx.Warn().Err(envErr).Str("file", envFile).Msg("Could not load env file")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file to load before reading configuration")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log prompts and model output in full")

	rootCmd.AddCommand(askCmd, batchCmd, schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
