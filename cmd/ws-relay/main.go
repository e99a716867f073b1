package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"shortlink/internal/config"
	"shortlink/internal/rabbitmq"
	"shortlink/internal/relay"
	"shortlink/internal/trending"
	"shortlink/internal/ws"
)

func main() {
	cfg := config.RelayFromEnv()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := trending.NewAggregator()

	// Late joiners get the current Top-N immediately on connect.
	hub := ws.NewHub(logger, func() ws.Message {
		return ws.Message{
			Event: relay.EventTrending,
			Data:  relay.TrendingPayload{Trending: agg.Top(cfg.TrendingLimit)},
		}
	})
	go hub.Run(ctx)

	rel := relay.New(agg, hub, cfg.TrendingLimit, logger)
	consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.Queue, logger)

	r := chi.NewRouter()
	r.Get("/ws", hub.ServeWS)
	r.Get("/_health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"service":     "ws-relay",
			"connections": hub.Connections(),
		})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("ws-relay starting",
			zap.String("port", cfg.Port),
			zap.String("queue", cfg.Queue),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Run(ctx, rel.HandleDelivery)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consumeErr:
		if err != nil {
			logger.Fatal("bus consumer gave up", zap.Error(err))
		}
	case <-quit:
	}

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
