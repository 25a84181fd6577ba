package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/idempotency"
)

// Idempotency drops updates the transport already delivered once. Claim
// failures fail open for the same reason the rate limiter does.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) telebot.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			key := updateKey(c)
			if manager == nil || key == "" {
				return next(c)
			}

			claimed, err := manager.Claim(context.Background(), key, ttl)
			if err != nil {
				log.Warn("idempotency claim unavailable, allowing update", slog.Any("error", err))
				return next(c)
			}

			if !claimed {
				log.Debug("duplicate update dropped", slog.String("key", key))
				return nil
			}

			return next(c)
		}
	}
}

// updateKey derives a stable identity for the update: callback IDs are
// globally unique, messages combine chat and message ID.
func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return "callback:" + cb.ID
	}

	if msg := c.Message(); msg != nil && msg.Chat != nil {
		return fmt.Sprintf("message:%d:%d", msg.Chat.ID, msg.ID)
	}

	return ""
}
