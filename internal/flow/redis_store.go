package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const flowKeyPattern = "flow:%s"

// RedisStore persists conversation flows in Redis with a TTL so abandoned
// conversations expire on their own.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisStore initializes a Redis-backed Store implementation.
func NewRedisStore(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Get returns the stored flow or ErrFlowNotFound when absent.
func (s *RedisStore) Get(ctx context.Context, phone string) (*ConversationFlow, error) {
	key := flowKey(phone)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFlowNotFound
		}

		s.log.Error("failed to get flow from redis", slog.String("phone", phone), slog.Any("error", err))
		return nil, err
	}

	var f ConversationFlow
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		s.log.Error("failed to decode flow", slog.String("phone", phone), slog.Any("error", err))
		return nil, err
	}

	return &f, nil
}

// Set saves the flow, refreshing the TTL.
func (s *RedisStore) Set(ctx context.Context, phone string, f *ConversationFlow) error {
	if f == nil {
		return errors.New("flow is nil")
	}

	f.UpdatedAt = time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = f.UpdatedAt
	}

	data, err := json.Marshal(f)
	if err != nil {
		s.log.Error("failed to encode flow", slog.String("phone", phone), slog.Any("error", err))
		return err
	}

	key := flowKey(phone)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save flow in redis", slog.String("phone", phone), slog.Any("error", err))
		return err
	}

	return nil
}

// Reset removes the stored flow for the given customer.
func (s *RedisStore) Reset(ctx context.Context, phone string) error {
	key := flowKey(phone)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to reset flow", slog.String("phone", phone), slog.Any("error", err))
		return err
	}

	return nil
}

// Transition validates the move against the graph and persists it in one
// step. A missing record starts from the default state.
func (s *RedisStore) Transition(ctx context.Context, phone string, target State) (*ConversationFlow, error) {
	current, err := s.Get(ctx, phone)
	if err != nil {
		if !errors.Is(err, ErrFlowNotFound) {
			return nil, err
		}
		current = New(phone)
	}

	if !IsTransitionAllowed(current.State, target) {
		s.log.Warn("invalid state transition",
			slog.String("phone", phone),
			slog.String("from", string(current.State)),
			slog.String("to", string(target)))
		return nil, ErrInvalidTransition
	}

	updated := current.Clone()
	updated.State = target
	if err := s.Set(ctx, phone, updated); err != nil {
		return nil, err
	}

	return updated, nil
}

func flowKey(phone string) string {
	return fmt.Sprintf(flowKeyPattern, CanonicalPhone(phone))
}
