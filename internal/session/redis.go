package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/config"
)

// RedisStore keeps session ids in a hash per browser, one field per tag, so
// they survive agent restarts and are shared between agent replicas.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(redisCfg config.RedisConfig, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return NewRedisStoreWithClient(rdb, ttl)
}

func NewRedisStoreWithClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis: rdb,
		ttl:   ttl,
	}
}

func (s *RedisStore) Resolve(ctx context.Context, browserID, tag, supplied string) (string, error) {
	if browserID == "" {
		if supplied != "" {
			return supplied, nil
		}
		return newID(), nil
	}

	key := "session:" + browserID

	pipe := s.redis.Pipeline()
	if supplied != "" {
		pipe.HSet(ctx, key, tag, supplied)
	} else {
		// keep an existing id, otherwise claim a new one
		pipe.HSetNX(ctx, key, tag, newID())
	}
	get := pipe.HGet(ctx, key, tag)
	pipe.HSetNX(ctx, key, "first_seen", time.Now().UnixMilli())
	pipe.HSet(ctx, key, "last_seen", time.Now().UnixMilli())
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("browser_id", browserID).Str("tag", tag).Msg("Failed to resolve session in Redis")
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return get.Val(), nil
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
