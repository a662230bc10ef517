package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

type echoRunner struct {
	calls atomic.Int32
}

func (r *echoRunner) Ask(_ context.Context, in model.QueryInput) *model.FinalAnswer {
	r.calls.Add(1)
	// later questions finish first
	time.Sleep(time.Duration(10-len(in.Question)%10) * time.Millisecond)
	return &model.FinalAnswer{Answer: in.Question, State: model.StateFinalized, Tools: []model.ToolName{}}
}

func TestReadQuestions(t *testing.T) {
	in := strings.NewReader(`
# hospitals
Which hospital has room 387?

  What do patients say about Dr. Smith?
`)
	qs, err := readQuestions(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Which hospital has room 387?", "What do patients say about Dr. Smith?"}, qs)
}

func TestRunBatch_KeepsInputOrder(t *testing.T) {
	questions := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "g", "hh"}
	runner := &echoRunner{}

	answers, err := runBatch(context.Background(), runner, questions, 3)
	require.NoError(t, err)
	require.Len(t, answers, len(questions))
	for i, q := range questions {
		assert.Equal(t, q, answers[i].Answer)
	}
	assert.EqualValues(t, len(questions), runner.calls.Load())
}

func TestRunBatch_NonPositiveWorkers(t *testing.T) {
	answers, err := runBatch(context.Background(), &echoRunner{}, []string{"only"}, 0)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "only", answers[0].Answer)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("ENGINE_MAX_STEPS", "4")
	t.Setenv("RETRIEVAL_BACKEND", "weaviate")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, 4, cfg.Engine.MaxSteps)
	assert.Equal(t, "weaviate", cfg.Retrieval.Backend)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Telemetry.Enabled())
}

func TestLoadConfig_RequiresAPIKey(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("GEMINI_API_KEY", "")
	require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, model.Unanswerable("req-1", errx.KindInvalidInput, "invalid question: blank")))
	out := buf.String()
	assert.Contains(t, out, `"request_id": "req-1"`)
	assert.Contains(t, out, `"state": "failed"`)
	assert.Contains(t, out, `"contributing_tools": []`)
}
