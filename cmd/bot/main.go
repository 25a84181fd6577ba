package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	telebot "gopkg.in/telebot.v3"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/availability"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/bot"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/database"
	apperrors "github.com/devtinkubot/tinkubot-microservices-sub001/internal/errors"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/health"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/i18n"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/idempotency"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/lifecycle"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/machine"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/middleware"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/ratelimit"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/repository"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/saga"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/usercache"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/config"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/graceful"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/logger"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
	pkgredis "github.com/devtinkubot/tinkubot-microservices-sub001/pkg/redis"

	_ "github.com/lib/pq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			TracesSampleRate: cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(logger.Options{
		Level:         cfg.LogLevel,
		Format:        cfg.Logging.Format,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxBackups:    cfg.Logging.MaxBackups,
		MaxAgeDays:    cfg.Logging.MaxAgeDays,
		SentryEnabled: cfg.Sentry.Enabled,
	})
	slog.SetDefault(log)

	log.Info("starting orchestrator",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.Server.Port))

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("closing database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := pkgredis.New(ctx, pkgredis.Config{
		Addr:            cfg.Redis.Addr,
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		PoolTimeout:     cfg.Redis.PoolTimeout,
		IdleTimeout:     cfg.Redis.IdleTimeout,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: cfg.Redis.MinRetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	flowStore := flow.NewRedisStore(redisClient.Client, cfg.Flow.TTL, log)

	channel := availability.NewRedisChannel(redisClient.Client, cfg.Availability.PublishQoS, log)
	coordinator := availability.NewCoordinator(redisClient.Client, channel, availability.Config{
		RequestTopic:   cfg.Availability.RequestTopic,
		ResponseTopic:  cfg.Availability.ResponseTopic,
		HardDeadline:   cfg.Availability.HardDeadline,
		GraceWindow:    cfg.Availability.GraceWindow,
		PollInterval:   cfg.Availability.PollInterval,
		DocumentTTL:    cfg.Availability.DocumentTTL,
		PublishTimeout: cfg.Availability.PublishTimeout,
		RetryDelay:     cfg.Availability.RetryDelay,
		QueueSize:      cfg.Availability.QueueSize,
	}, log)
	if err := coordinator.Start(ctx); err != nil {
		// Searches degrade to "nobody available" while the channel is down,
		// the rest of the conversation keeps working.
		log.Error("availability coordinator not started", slog.Any("error", err))
	}

	customers := repository.NewCachedCustomerRepository(
		repository.NewCustomerRepository(db, log),
		usercache.New(redisClient.Client, cfg.Flow.ProfileCacheTTL),
		log)
	directory := repository.NewProviderDirectory(db, log)

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	catalog, err := i18n.LoadDir("locales", "es")
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}

	saga.RegisterRecorders(metrics.RecordSagaExecution, metrics.RecordSagaRollbackStep)

	processor := machine.New(flowStore, customers, directory, coordinator, errHandler, catalog.Translator("es"), log, machine.Options{
		MaxConfirmAttempts: cfg.Flow.ConfirmAttempts,
		MaxCandidates:      cfg.Availability.MaxCandidates,
	})

	var tgBot *bot.Bot
	if cfg.Bot.Enabled {
		mws := []telebot.MiddlewareFunc{
			middleware.Logging(log),
			middleware.Metrics(),
			middleware.Idempotency(idempotency.NewManager(redisClient.Client, log), cfg.Bot.DedupTTL, log),
		}
		if cfg.Bot.RateLimit.Enabled {
			limiter := ratelimit.NewRedisLimiter(redisClient.Client, log)
			mws = append(mws, middleware.RateLimit(limiter, cfg.Bot.RateLimit.Limit, cfg.Bot.RateLimit.Window, log))
		}

		tgBot, err = bot.New(cfg.Bot, log, processor, mws...)
		if err != nil {
			return fmt.Errorf("init bot: %w", err)
		}
		go tgBot.Start()
		log.Info("telegram bot started", slog.String("mode", cfg.Bot.Mode))
	}

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))
	if tgBot != nil {
		checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !checker.Healthy(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := graceful.NewServer(log, &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: logger.Middleware(mux),
	}, cfg.Server.ShutdownTimeout)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe(ctx)
	}()

	config.Watch(v, cfg.AppEnv, log, func(next *config.Config) {
		coordinator.UpdateTunables(availability.Config{
			HardDeadline:   next.Availability.HardDeadline,
			GraceWindow:    next.Availability.GraceWindow,
			PollInterval:   next.Availability.PollInterval,
			DocumentTTL:    next.Availability.DocumentTTL,
			PublishTimeout: next.Availability.PublishTimeout,
			RetryDelay:     next.Availability.RetryDelay,
		})
	})

	shutdown := lifecycle.NewShutdown(log)
	if tgBot != nil {
		shutdown.Register("telegram-bot", func(context.Context) error {
			tgBot.Stop()
			return nil
		})
	}
	shutdown.Register("availability-coordinator", func(context.Context) error {
		return coordinator.Close()
	})
	shutdown.Register("redis", func(context.Context) error {
		return redisClient.Close()
	})

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}
	log.Info("orchestrator stopped")

	return nil
}
