package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ostraco/sendonce"
	"github.com/ostraco/sendonce/internal/adapters/handler"
	"github.com/ostraco/sendonce/internal/adapters/postgres"
	"github.com/ostraco/sendonce/internal/config"
	"github.com/ostraco/sendonce/internal/metrics"
	"github.com/ostraco/sendonce/internal/relay"
	"github.com/ostraco/sendonce/internal/worker"
	"github.com/ostraco/sendonce/receiver"
	"github.com/ostraco/sendonce/store/pgstore"
	"github.com/ostraco/sendonce/store/redisstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting relayd",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
		"marker_backend", cfg.Markers.Backend,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	jobRepo := postgres.NewJobRepository(db)

	markers, purger, err := buildMarkerStore(cfg, db)
	if err != nil {
		logger.Error("failed to build marker store", "error", err)
		os.Exit(1)
	}

	receiverClient := receiver.NewClient(
		cfg.Receiver.BaseURL,
		receiver.WithTimeout(cfg.Receiver.ConnTimeout),
	)

	protocol := sendonce.New[json.RawMessage, *receiver.Receipt](
		markers,
		receiverClient,
		sendonce.WithLogger(logger),
	)

	service := relay.NewService(jobRepo, protocol, relay.NewRegistry(), cfg.Retry.Policy(), logger)

	relayHandler := handler.NewRelayHandler(service, db)

	mux := http.NewServeMux()
	relayHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	router := http.Handler(mux)

	h := handler.Recovery(logger)(router)
	h = handler.Logging(logger)(h)
	h = handler.Timeout(cfg.Server.ReadTimeout)(h)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	resender := worker.NewResender(jobRepo, service, cfg.Worker.Interval, cfg.Worker.BatchSize, logger)
	janitor := worker.NewJanitor(jobRepo, purger, cfg.Worker.Interval, cfg.Worker.Retention, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go resender.Start(workerCtx)
	go janitor.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

// buildMarkerStore picks the send-marker backend. The postgres backend shares
// the relay database and gets swept by the janitor; redis markers expire on
// their own, so no purger is returned for them.
func buildMarkerStore(cfg *config.Config, db *postgres.DB) (sendonce.MarkerStore, worker.MarkerPurger, error) {
	switch cfg.Markers.Backend {
	case "postgres":
		store := pgstore.NewStore(db.Pool)
		return store, store, nil
	case "redis":
		client, err := cfg.Redis.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		var opts []redisstore.Option
		if cfg.Markers.TTL > 0 {
			opts = append(opts, redisstore.WithTTL(cfg.Markers.TTL))
		}
		if cfg.Markers.KeyPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.Markers.KeyPrefix))
		}
		return redisstore.NewStore(client, opts...), nil, nil
	case "memory":
		return sendonce.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown marker backend: %q", cfg.Markers.Backend)
	}
}
