// Package bot adapts an inbound chat transport to the conversation machine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/machine"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/config"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/logger"
)

// Processor is the slice of the state machine the transport needs.
type Processor interface {
	ProcessMessage(ctx context.Context, phone, text string, selection int) (*machine.Result, error)
}

// Bot routes chat messages into the conversation machine and sends replies
// back. Webhook parsing and template generation live outside the
// orchestration core; this adapter is the boundary.
type Bot struct {
	telebot   *telebot.Bot
	processor Processor
	log       *slog.Logger
}

// New builds a Telegram bot instance configured according to the application
// settings. Middleware runs in the given order, after panic recovery.
func New(cfg config.BotConfig, log *slog.Logger, processor Processor, mws ...telebot.MiddlewareFunc) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Token,
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot:   tb,
		processor: processor,
		log:       log,
	}

	tb.Use(b.recoverMiddleware)
	for _, mw := range mws {
		tb.Use(mw)
	}
	tb.Handle(telebot.OnText, b.handleText)
	tb.Handle(telebot.OnCallback, b.handleCallback)

	return b, nil
}

// Telebot exposes the underlying client for health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Start begins processing updates until Stop is called.
func (b *Bot) Start() {
	b.log.Info("bot transport started")
	b.telebot.Start()
}

// Stop halts update processing.
func (b *Bot) Stop() {
	b.telebot.Stop()
	b.log.Info("bot transport stopped")
}

// handleText forwards a plain text turn to the machine.
func (b *Bot) handleText(c telebot.Context) error {
	return b.process(c, c.Text(), 0)
}

// handleCallback forwards an inline menu choice as a structured selection.
func (b *Bot) handleCallback(c telebot.Context) error {
	selection := 0
	if cb := c.Callback(); cb != nil {
		if n, err := strconv.Atoi(cb.Data); err == nil {
			selection = n
		}
	}

	return b.process(c, "", selection)
}

func (b *Bot) process(c telebot.Context, text string, selection int) error {
	if c.Sender() == nil {
		b.log.Warn("cannot process update without sender information")
		return nil
	}

	// No processing deadline here: a turn that enters SEARCHING legitimately
	// blocks for the whole coordination window.
	ctx := logger.WithCorrelationID(context.Background(), "")
	id := strconv.FormatInt(c.Sender().ID, 10)

	start := time.Now()
	result, err := b.processor.ProcessMessage(ctx, id, text, selection)
	if err != nil {
		b.log.Error("failed to process message",
			slog.String("customer", id),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return c.Send("Ocurrió un error. Intenta de nuevo más tarde.")
	}

	b.log.Info("processed message",
		slog.String("customer", id),
		slog.String("state", string(result.State)),
		slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
		slog.Duration("duration", time.Since(start)))

	return c.Send(result.Reply)
}

// recoverMiddleware keeps a panicking update from crashing the poller.
func (b *Bot) recoverMiddleware(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("panic in update handler", slog.Any("panic", r))
			}
		}()

		return next(c)
	}
}
