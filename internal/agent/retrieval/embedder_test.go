package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-graph-rag/server/internal/agent/mock"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]float32
	readErr error
}

func (c *memoryCache) Get(_ context.Context, model, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.data[model+"|"+text]
	if !ok {
		return nil, errx.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, model, text string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]float32)
	}
	c.data[model+"|"+text] = vector
	return nil
}

func TestCachedEmbedder_MissThenHit(t *testing.T) {
	inner := &mock.Embedder{}
	cache := &memoryCache{}
	e := NewCachedEmbedder(inner, cache, "text-embedding-004")

	first, err := e.Embed(context.Background(), "reviews of Wallace-Hamilton")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "reviews of Wallace-Hamilton")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.CallCount())
}

func TestCachedEmbedder_ReadErrorFallsThrough(t *testing.T) {
	inner := &mock.Embedder{}
	e := NewCachedEmbedder(inner, &memoryCache{readErr: errors.New("redis down")}, "m")

	vec, err := e.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 1, inner.CallCount())
}

func TestCachedEmbedder_InnerErrorIsReturned(t *testing.T) {
	inner := &mock.Embedder{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("quota")
	}}
	cache := &memoryCache{}

	_, err := NewCachedEmbedder(inner, cache, "m").Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Empty(t, cache.data)
}
