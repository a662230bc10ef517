// Package retrieval finds review passages by vector similarity.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is a read-only vector index. Scope, when non-empty, restricts hits
// to passages naming that physician, patient or hospital.
type Index interface {
	Search(ctx context.Context, vector []float32, k int, scope string) ([]model.Passage, error)
}

var errEmptyQuestion = errors.New("empty retrieval question")

// Retriever embeds a question, searches the index and ranks the hits.
// Concurrent identical questions share one embedding call.
type Retriever struct {
	embedder Embedder
	index    Index
	topK     int
	timeout  time.Duration
	group    singleflight.Group
}

func NewRetriever(embedder Embedder, index Index, topK int, timeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = model.DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, timeout: timeout}
}

// Retrieve returns at most k passages ordered by descending score; ties keep
// index order. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int, scope string) ([]model.Passage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errx.ExecutionFailed(errEmptyQuestion, "passage retrieval")
	}
	if k <= 0 {
		k = r.topK
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := observers.StartSpan(ctx, "retrieval.Retriever.Retrieve",
		attribute.Int("k", k),
		attribute.Bool("scoped", scope != ""),
	)
	passages, err := r.retrieve(ctx, question, k, strings.TrimSpace(scope))
	observers.EndSpan(span, err)
	return passages, err
}

func (r *Retriever) retrieve(ctx context.Context, question string, k int, scope string) ([]model.Passage, error) {
	vector, shared, err := r.embed(ctx, question)
	if err != nil {
		return nil, errx.ExecutionFailed(err, "question embedding failed")
	}

	hits, err := r.index.Search(ctx, vector, k, scope)
	if err != nil {
		return nil, errx.ExecutionFailed(err, "vector search failed")
	}

	ranked := Rank(hits, k)
	logx.Ctx(ctx).Debug().
		Int("hits", len(hits)).
		Int("returned", len(ranked)).
		Bool("shared_embedding", shared).
		Str("scope", scope).
		Msg("Passages retrieved")
	return ranked, nil
}

// embed shares one embedding call between concurrent identical questions.
// The shared call runs detached from any single caller's cancellation under
// its own timeout; each caller stops waiting when its own ctx is done.
func (r *Retriever) embed(ctx context.Context, question string) ([]float32, bool, error) {
	ch := r.group.DoChan(question, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, r.timeout)
			defer cancel()
		}
		return r.embedder.Embed(callCtx, question)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.([]float32), res.Shared, nil
	}
}

// Rank stable-sorts passages by descending score and keeps the first k.
// The input slice is not modified.
func Rank(passages []model.Passage, k int) []model.Passage {
	out := slices.Clone(passages)
	if out == nil {
		out = []model.Passage{}
	}
	slices.SortStableFunc(out, func(a, b model.Passage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
