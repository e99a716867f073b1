package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"shortlink/internal/cache"
	"shortlink/internal/config"
	"shortlink/internal/rabbitmq"
	"shortlink/internal/redirect"
	"shortlink/internal/store"
)

func main() {
	cfg := config.RedirectFromEnv()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache is best-effort; the resolver degrades to store reads.
		logger.Warn("redis unreachable, continuing without warm cache", zap.Error(err))
	}
	defer rdb.Close()

	publisher := rabbitmq.NewPublisher(cfg.RabbitURL, logger)
	publisher.Start(ctx)

	urlCache := cache.NewRedisURLCache(rdb, logger)
	urlStore := store.NewPostgresURLStore(db)
	service := redirect.NewService(urlCache, urlStore, publisher, logger)
	handler := redirect.NewHandler(service, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: redirect.NewRouter(handler, logger),
	}

	go func() {
		logger.Info("redirect service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}
