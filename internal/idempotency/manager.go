// Package idempotency drops duplicate deliveries of the same chat update.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

// Manager claims update keys so each update is processed at most once inside
// the TTL, even when the transport redelivers it.
type Manager interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisManager struct {
	client redis.Cmdable
	log    *slog.Logger
}

// NewManager creates a Redis-backed Manager.
func NewManager(client redis.Cmdable, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &redisManager{client: client, log: log}
}

// Claim returns true when this caller is the first to see the key. SETNX
// makes the claim atomic across replicas; the TTL bounds how long a
// duplicate is remembered.
func (m *redisManager) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.client == nil {
		return false, errors.New("redis client is not configured for idempotency")
	}
	if key == "" {
		return false, errors.New("idempotency key is empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	claimed, err := m.client.SetNX(ctx, keyPrefix+key, 1, ttl).Result()
	if err != nil {
		m.log.Error("idempotency claim failed", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return claimed, nil
}
