package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by cache reads when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// WrapRedis maps Redis errors to AppError with a consistent status and message.
// redis.Nil becomes ErrCacheMiss so callers never import the driver.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(ErrCacheMiss, http.StatusNotFound, RedisErrorMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
