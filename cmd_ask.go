package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

var (
	askRequestID string
	askTurnsFile string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Long: `Answer a single question and print the final answer as JSON.

Prior turns of the conversation can be supplied as a JSON array of
{"role": "user"|"assistant", "content": "..."} objects.`,
	Example: `  hospital-rag ask "Which hospital has the most visits covered by Cigna?"
  hospital-rag ask --turns turns.json "And what do patients say about it?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRequestID, "request-id", "", "request id to tag logs and the answer with (generated when empty)")
	askCmd.Flags().StringVar(&askTurnsFile, "turns", "", "JSON file with prior conversation turns")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := model.QueryInput{
		RequestID: askRequestID,
		Question:  strings.Join(args, " "),
	}
	if askTurnsFile != "" {
		turns, err := readTurns(askTurnsFile)
		if err != nil {
			return err
		}
		in.PriorTurns = turns
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWithTimeout(e)

	return writeJSON(cmd.OutOrStdout(), e.runner.Ask(ctx, in))
}

func readTurns(path string) ([]model.Turn, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errx.InvalidInput(err)
	}
	var turns []model.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, errx.InvalidInput(err)
	}
	return turns, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeWithTimeout(e *engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.Close(ctx)
}
