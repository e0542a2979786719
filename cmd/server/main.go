package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/cache"
	"github.com/tableside/api/internal/config"
	"github.com/tableside/api/internal/gateway"
	"github.com/tableside/api/internal/logger"
	"github.com/tableside/api/internal/notify"
	"github.com/tableside/api/internal/queue"
	"github.com/tableside/api/internal/router"
	"github.com/tableside/api/internal/service"
	"github.com/tableside/api/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("database ping failed", zap.Error(err))
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	sinks := []notify.Sink{hub}
	// The broker sink outlives the signal context so requests still draining
	// during shutdown can publish; it is stopped after the HTTP server.
	brokerCtx, stopBroker := context.WithCancel(context.Background())
	defer stopBroker()
	var broker *notify.AsyncSink
	if qc := connectQueue(cfg, log); qc != nil {
		defer qc.Close()
		broker = notify.NewAsync(queue.NewPublisher(qc), 0, log)
		go broker.Run(brokerCtx)
		sinks = append(sinks, broker)
	}

	var dedup service.EventDeduper
	if c := connectCache(ctx, cfg, log); c != nil {
		defer c.Close()
		dedup = cache.NewDeduper(c, cfg.WebhookDedupTTL, log)
	}

	method, ok := gateway.ProviderMethod(cfg.PaymentProvider)
	if !ok {
		log.Fatal("unsupported payment provider", zap.String("provider", cfg.PaymentProvider))
	}
	gatewaySecret, ok := cfg.WebhookSecret(cfg.PaymentProvider)
	if !ok {
		log.Warn("no secret configured for payment provider", zap.String("provider", cfg.PaymentProvider))
	}

	r := router.New(cfg, router.Deps{
		Log:      log,
		Pool:     pool,
		Hub:      hub,
		Notifier: notify.New(log, sinks...),
		Gateway:  gateway.NewHMACGateway(method, gatewaySecret),
		Deduper:  dedup,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if broker != nil {
		stopBroker()
		select {
		case <-broker.Done():
		case <-shutdownCtx.Done():
			log.Warn("broker flush timed out")
		}
	}
}

// connectQueue returns nil when RabbitMQ is disabled or unreachable outside
// production.
func connectQueue(cfg *config.Config, log *zap.Logger) *queue.Client {
	if cfg.RabbitMQURL == "" {
		log.Info("rabbitmq disabled (RABBITMQ_URL is empty)")
		return nil
	}
	qc, err := queue.New(cfg.RabbitMQURL)
	if err == nil {
		err = qc.EnsureEventsTopology()
		if err != nil {
			_ = qc.Close()
		}
	}
	if err != nil {
		if cfg.Env == "production" {
			log.Fatal("rabbitmq setup failed", zap.Error(err))
		}
		log.Warn("rabbitmq setup failed; continuing without broker", zap.Error(err))
		return nil
	}
	log.Info("rabbitmq enabled", zap.String("exchange", queue.EventsExchange), zap.String("queue", queue.EventsQueue))
	return qc
}

// connectCache returns nil when Redis is disabled or unreachable. Webhook
// dedup is skipped in that case.
func connectCache(ctx context.Context, cfg *config.Config, log *zap.Logger) cache.Cache {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Info("redis disabled (REDIS_ADDR is empty)")
		return nil
	}
	c := cache.NewRedisCache(cfg.RedisAddr, "tableside")
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		if cfg.Env == "production" {
			log.Fatal("redis ping failed", zap.Error(err))
		}
		log.Warn("redis ping failed; webhook dedup disabled", zap.Error(err))
		return nil
	}
	log.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	return c
}
