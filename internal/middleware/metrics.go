package middleware

import (
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
)

// Metrics reports inbound update counts and handling time to Prometheus.
func Metrics() telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			start := time.Now()
			err := next(c)

			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RecordUpdate(updateKind(c), status, time.Since(start))

			return err
		}
	}
}
