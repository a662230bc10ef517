package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

type RedisEmbeddingCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisEmbeddingCache(rdb redis.Cmdable, ttl time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{rdb: rdb, ttl: ttl}
}

// embeddingKey hashes the text so keys stay short and carry no question text.
func (r *RedisEmbeddingCache) embeddingKey(modelName, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", modelName, hex.EncodeToString(sum[:16]))
}

func (r *RedisEmbeddingCache) Get(ctx context.Context, modelName, text string) ([]float32, error) {
	key := r.embeddingKey(modelName, text)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		wrapped := errx.WrapRedis(err)
		if err != redis.Nil {
			logx.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to read embedding from redis")
		}
		return nil, wrapped
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		logx.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to unmarshal embedding")
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return vec, nil
}

func (r *RedisEmbeddingCache) Set(ctx context.Context, modelName, text string, vector []float32) error {
	b, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	key := r.embeddingKey(modelName, text)

	// zero ttl keeps the key until evicted
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to write embedding to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.EmbeddingCache = (*RedisEmbeddingCache)(nil)
