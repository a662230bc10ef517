package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// Store is a test double for the read-only graph store.
type Store struct {
	// RunFunc is called by Run if set. If nil, Run returns no rows.
	RunFunc func(ctx context.Context, cypher string, limit int) ([]string, []model.Row, error)

	mu      sync.Mutex
	queries []string
}

func (s *Store) Run(ctx context.Context, cypher string, limit int) ([]string, []model.Row, error) {
	s.mu.Lock()
	s.queries = append(s.queries, cypher)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.RunFunc != nil {
		return s.RunFunc(ctx, cypher, limit)
	}
	return nil, nil, nil
}

// Queries returns every query text the store received.
func (s *Store) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// Index is a test double for a vector index.
type Index struct {
	// SearchFunc is called by Search if set. If nil, Search returns nothing.
	SearchFunc func(ctx context.Context, vector []float32, k int, scope string) ([]model.Passage, error)

	mu     sync.Mutex
	scopes []string
}

func (x *Index) Search(ctx context.Context, vector []float32, k int, scope string) ([]model.Passage, error) {
	x.mu.Lock()
	x.scopes = append(x.scopes, scope)
	x.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x.SearchFunc != nil {
		return x.SearchFunc(ctx, vector, k, scope)
	}
	return nil, nil
}

// Scopes returns the scope filter of every search, in call order.
func (x *Index) Scopes() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, len(x.scopes))
	copy(out, x.scopes)
	return out
}

// Embedder is a test double for the question embedder.
type Embedder struct {
	// EmbedFunc is called by Embed if set. If nil, uses a deterministic
	// vector derived from the text hash.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	mu        sync.Mutex
	callCount int
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.callCount++
	e.mu.Unlock()

	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, text)
	}
	return deterministicVector(text, 8), nil
}

func (e *Embedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// deterministicVector derives a stable vector from the FNV hash of text.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000) / 1000.0
	}
	return v
}
