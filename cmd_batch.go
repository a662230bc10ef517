package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"

	"github.com/hospital-graph-rag/server/internal/agent/graph"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

var (
	batchFile    string
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer a file of questions concurrently",
	Long: `Answer every question in a file, one question per line, and print one
JSON answer per line in input order. Blank lines and lines starting with #
are skipped. Use - to read from stdin.`,
	Args: cobra.NoArgs,
	RunE: runBatchCmd,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "-", "questions file, or - for stdin")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "questions answered concurrently")
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var r io.Reader = cmd.InOrStdin()
	if batchFile != "-" {
		f, err := os.Open(batchFile)
		if err != nil {
			return errx.InvalidInput(err)
		}
		defer f.Close()
		r = f
	}
	questions, err := readQuestions(r)
	if err != nil {
		return errx.InvalidInput(err)
	}
	if len(questions) == 0 {
		return errx.InvalidInput(fmt.Errorf("no questions in %s", batchFile))
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

	answers, err := runBatch(ctx, e.runner, questions, batchWorkers)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, a := range answers {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return nil
}

func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	return questions, sc.Err()
}

// runBatch answers questions on a bounded worker pool. Answers keep the order
// of the questions regardless of completion order.
func runBatch(ctx context.Context, runner graph.Runner, questions []string, workers int) ([]*model.FinalAnswer, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	answers := make([]*model.FinalAnswer, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			answers[i] = runner.Ask(ctx, model.QueryInput{Question: q})
		}); err != nil {
			wg.Done()
			logx.Error().Err(err).Int("index", i).Msg("Error submitting question")
			answers[i] = model.Unanswerable("", errx.KindExecutionFailed, "the question could not be scheduled")
		}
	}
	wg.Wait()

	logx.Info().Int("questions", len(questions)).Int("workers", workers).Msg("Batch finished")
	return answers, nil
}
