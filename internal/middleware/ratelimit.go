package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/ratelimit"
)

const msgTooFast = "Estás enviando mensajes muy rápido. Espera un momento, por favor 🙏"

// RateLimit throttles updates per sender with a sliding window. Limiter
// failures fail open: a broken Redis must not silence the bot.
func RateLimit(limiter ratelimit.Limiter, limit int, window time.Duration, log *slog.Logger) telebot.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			sender := c.Sender()
			if limiter == nil || sender == nil {
				return next(c)
			}

			key := strconv.FormatInt(sender.ID, 10)
			result, err := limiter.Check(context.Background(), key, limit, window)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing update", slog.Any("error", err))
				return next(c)
			}

			if !result.Allowed {
				log.Info("rate limit exceeded",
					slog.Int64("sender_id", sender.ID),
					slog.Time("reset_at", result.ResetAt))
				return c.Send(msgTooFast)
			}

			return next(c)
		}
	}
}
