// Package ratelimit throttles inbound chat traffic per customer.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures one rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter evaluates whether another event is allowed for the key inside the
// sliding window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the window is exhausted for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")
