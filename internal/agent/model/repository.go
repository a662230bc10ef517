package model

import "context"

// EmbeddingCache stores question embeddings keyed by model and text.
// Get returns errx.ErrCacheMiss when nothing is stored.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, error)
	Set(ctx context.Context, model, text string, vector []float32) error
}
