// Package middleware holds transport-level middleware for the chat adapter.
package middleware

import (
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"
)

// Logging records every inbound update with its kind, sender, and handling
// time.
func Logging(log *slog.Logger) telebot.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			start := time.Now()
			err := next(c)

			attrs := []any{
				slog.String("kind", updateKind(c)),
				slog.Duration("duration", time.Since(start)),
			}
			if sender := c.Sender(); sender != nil {
				attrs = append(attrs, slog.Int64("sender_id", sender.ID))
			}

			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
				log.Error("update failed", attrs...)
			} else {
				log.Debug("update handled", attrs...)
			}

			return err
		}
	}
}

func updateKind(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}
	if c.Callback() != nil {
		return "callback"
	}
	if c.Message() != nil {
		return "message"
	}

	return "unknown"
}
