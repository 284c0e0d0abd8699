// Package main запускает HTTP-сервер платёжного ядра.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderpay/internal/config"
	"github.com/mmeshcher/orderpay/internal/events"
	"github.com/mmeshcher/orderpay/internal/handler"
	"github.com/mmeshcher/orderpay/internal/idempotency"
	"github.com/mmeshcher/orderpay/internal/middleware"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/payment"
	"github.com/mmeshcher/orderpay/internal/pgclient"
	"github.com/mmeshcher/orderpay/internal/reconcile"
	"github.com/mmeshcher/orderpay/internal/repository"
	"github.com/mmeshcher/orderpay/internal/service"
	"github.com/mmeshcher/orderpay/internal/webhook"
)

const webhookKeyTTL = 72 * time.Hour

// store объединяет контракты хранилища всех компонентов.
type store interface {
	service.Store
	ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo store
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI, cfg.LockTimeout)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository(cfg.LockTimeout)
	}

	var cache idempotency.Cache = idempotency.Nop{}
	if cfg.RedisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			sugar.Fatalw("redis connection error", "error", err.Error())
		}
		cache = idempotency.NewRedisCache(redisClient, "orderpay:webhook", webhookKeyTTL)
	}

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			sugar.Fatalw("kafka producer initialization error", "error", err.Error())
		}
	} else {
		publisher = events.NewLogPublisher(logger)
	}
	defer publisher.Close()

	machine := payment.NewMachine(cfg.AmountTolerance)
	clock := model.SystemClock{}

	svc := service.NewService(repo, service.Options{
		Clock:        clock,
		Machine:      machine,
		Publisher:    publisher,
		Logger:       logger,
		ClaimTimeout: cfg.ClaimTimeout,
		NewID:        uuid.New,
	})
	defer svc.Close()

	gateway := webhook.NewGateway(repo, webhook.Options{
		Machine:   machine,
		Clock:     clock,
		Cache:     cache,
		Publisher: publisher,
		Logger:    logger,
		Timeout:   cfg.WebhookTimeout,
	})

	if cfg.WebhookSecret == "" {
		sugar.Warn("WEBHOOK_SECRET is empty, webhook signatures are not verified")
	}
	h := handler.NewHandler(svc, gateway, logger, middleware.NewSignatureMiddleware(cfg.WebhookSecret))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Сверка зависших платежей с PG
	if cfg.PGAPIAddress != "" {
		worker := reconcile.NewWorker(repo, pgclient.NewClient(cfg.PGAPIAddress), gateway, clock, logger,
			cfg.ReconcileInterval, cfg.ReconcileStaleAfter)
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting orderpay server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
