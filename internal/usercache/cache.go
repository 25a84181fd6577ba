// Package usercache caches customer profiles in Redis to keep profile
// lookups off the hot path of every conversation turn.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/domain"
)

const keyPrefix = "customer:"

// ErrMiss signals the profile is not cached.
var ErrMiss = errors.New("customer not in cache")

// Cache stores customer profiles keyed by canonical phone.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New constructs a customer cache. A non-positive TTL defaults to five
// minutes.
func New(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached profile or ErrMiss.
func (c *Cache) Get(ctx context.Context, phone string) (*domain.Customer, error) {
	if c == nil || c.client == nil {
		return nil, ErrMiss
	}

	data, err := c.client.Get(ctx, keyPrefix+phone).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var customer domain.Customer
	if err := json.Unmarshal([]byte(data), &customer); err != nil {
		return nil, err
	}

	return &customer, nil
}

// Set stores the profile, refreshing the TTL.
func (c *Cache) Set(ctx context.Context, customer *domain.Customer) error {
	if c == nil || c.client == nil || customer == nil {
		return nil
	}

	data, err := json.Marshal(customer)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, keyPrefix+customer.Phone, data, c.ttl).Err()
}

// Invalidate removes the cached profile.
func (c *Cache) Invalidate(ctx context.Context, phone string) error {
	if c == nil || c.client == nil {
		return nil
	}

	return c.client.Del(ctx, keyPrefix+phone).Err()
}
