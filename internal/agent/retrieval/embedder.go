package retrieval

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// GenAIEmbedder embeds text with a Gemini embedding model. The client is
// shared with the chat models and owned by the caller.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

var _ Embedder = (*GenAIEmbedder)(nil)

func NewGenAIEmbedder(client *genai.Client, cfg model.EmbeddingConfig) *GenAIEmbedder {
	return &GenAIEmbedder{client: client, model: cfg.Model, taskType: cfg.TaskType}
}

func (e *GenAIEmbedder) Model() string { return e.model }

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, errors.New("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// CachedEmbedder serves repeated questions from an embedding cache. Cache
// failures are logged and treated as misses.
type CachedEmbedder struct {
	inner Embedder
	cache model.EmbeddingCache
	model string
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner Embedder, cache model.EmbeddingCache, modelName string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: modelName}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	log := logx.Ctx(ctx)

	vec, err := e.cache.Get(ctx, e.model, text)
	switch {
	case err == nil && len(vec) > 0:
		observers.RecordCache("hit")
		return vec, nil
	case err == nil || errors.Is(err, errx.ErrCacheMiss):
		observers.RecordCache("miss")
	default:
		observers.RecordCache("error")
		log.Warn().Err(err).Msg("Embedding cache read failed")
	}

	vec, err = e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, e.model, text, vec); err != nil {
		log.Warn().Err(err).Msg("Embedding cache write failed")
	}
	return vec, nil
}
