// Command aggregator starts the standalone cross-run statistics service.
//
// It consumes per-sample outcome and run-finished events from Kafka,
// aggregates them in memory per (classifier, method) pair (mean stability,
// percentiles, skip rate), and exposes the result at GET /api/v1/stats.
//
// Usage:
//
//	go run ./cmd/aggregator [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/explainlab/stability-platform/internal/stability"
	"github.com/explainlab/stability-platform/pkg/config"
	"github.com/explainlab/stability-platform/pkg/health"
	"github.com/explainlab/stability-platform/pkg/kafka"
	"github.com/explainlab/stability-platform/pkg/logger"
	"github.com/explainlab/stability-platform/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting stability aggregator", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Outcome events drive the aggregator; run-finished events arrive on a
	// second topic and feed the same handler.
	aggregator := stability.NewAggregator()
	handle := stability.HandleEvent(aggregator)
	outcomeConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SampleOutcomes, handle)
	runConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RunEvents, handle)

	go func() {
		if err := outcomeConsumer.Start(ctx); err != nil {
			slog.Error("outcome consumer error", "error", err)
		}
	}()
	go func() {
		if err := runConsumer.Start(ctx); err != nil {
			slog.Error("run event consumer error", "error", err)
		}
	}()
	slog.Info("stability aggregator started",
		"outcome_topic", cfg.Kafka.Topics.SampleOutcomes,
		"run_topic", cfg.Kafka.Topics.RunEvents,
	)

	statsHandler := stability.NewStatsHandler(aggregator)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stats", statsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("stability aggregator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("stability aggregator stopped")
}
