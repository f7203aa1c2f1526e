// Command server starts the stability evaluation service.
//
// It exposes the run API (POST /api/v1/runs, GET /api/v1/runs,
// GET /api/v1/runs/{id}), persists runs in PostgreSQL, caches explanations
// in Redis, publishes per-sample outcome events to Kafka, and serves
// Prometheus metrics on a separate port.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
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

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/classifier/linear"
	"github.com/explainlab/stability-platform/internal/classifier/remote"
	"github.com/explainlab/stability-platform/internal/dataset"
	"github.com/explainlab/stability-platform/internal/explain"
	explaincache "github.com/explainlab/stability-platform/internal/explain/cache"
	"github.com/explainlab/stability-platform/internal/explain/lime"
	"github.com/explainlab/stability-platform/internal/explain/shap"
	"github.com/explainlab/stability-platform/internal/perturb"
	"github.com/explainlab/stability-platform/internal/server"
	"github.com/explainlab/stability-platform/internal/stability"
	"github.com/explainlab/stability-platform/internal/stability/store"
	"github.com/explainlab/stability-platform/internal/thesaurus"
	"github.com/explainlab/stability-platform/pkg/config"
	"github.com/explainlab/stability-platform/pkg/health"
	"github.com/explainlab/stability-platform/pkg/kafka"
	"github.com/explainlab/stability-platform/pkg/logger"
	"github.com/explainlab/stability-platform/pkg/metrics"
	"github.com/explainlab/stability-platform/pkg/middleware"
	"github.com/explainlab/stability-platform/pkg/postgres"
	"github.com/explainlab/stability-platform/pkg/redis"
	"github.com/explainlab/stability-platform/pkg/resilience"
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
	slog.Info("starting stability server", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Dataset and thesaurus are loaded once and shared across runs.
	ds, err := dataset.Load(cfg.Dataset.Path, cfg.Dataset.Labels)
	if err != nil {
		slog.Error("failed to load dataset", "path", cfg.Dataset.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("dataset loaded", "samples", len(ds.Samples), "malformed", ds.Malformed)

	th, err := loadThesaurus(cfg.Perturbation.ThesaurusPath)
	if err != nil {
		slog.Error("failed to load thesaurus", "path", cfg.Perturbation.ThesaurusPath, "error", err)
		os.Exit(1)
	}

	clf, err := buildClassifier(cfg, m)
	if err != nil {
		slog.Error("failed to build classifier", "kind", cfg.Classifier.Kind, "error", err)
		os.Exit(1)
	}
	clf = classifier.Instrument(clf, m)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	runStore := store.New(db)

	// The explanation cache is optional: without Redis, explanations are
	// simply recomputed.
	explainer := buildExplainer(cfg)
	var redisClient *redis.Client
	var cache *explaincache.Cache
	if cfg.Explainer.CacheEnabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, explanation cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cache = explaincache.New(explainer, redisClient, cfg.Redis, m)
			explainer = cache
		}
	}

	outcomeProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SampleOutcomes)
	defer outcomeProducer.Close()
	runProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunEvents)
	defer runProducer.Close()

	factory := func(runID string, opts stability.Options) *stability.Evaluator {
		return stability.NewEvaluator(runID, stability.Deps{
			Dataset:     ds,
			Perturber:   perturb.New(th, opts.Seed),
			Explainer:   explainer,
			Classifier:  clf,
			Producer:    outcomeProducer,
			RunProducer: runProducer,
			Metrics:     m,
		}, opts)
	}

	defaults := stability.Options{
		SampleSize:              cfg.Evaluator.SampleSize,
		SubstitutionProbability: cfg.Perturbation.SubstitutionProbability,
		TopK:                    cfg.Explainer.TopK,
		Seed:                    cfg.Evaluator.Seed,
		Parallelism:             cfg.Evaluator.Parallelism,
	}
	handler := server.NewHandler(runStore, factory, clf.ID(), cfg.Explainer.Method, defaults, cfg.Evaluator.Timeout)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	checker.Register("classifier", classifierCheck(clf))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", handler.Submit)
	mux.HandleFunc("GET /api/v1/runs", handler.List)
	mux.HandleFunc("GET /api/v1/runs/{id}", handler.Get)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cache != nil {
		mux.HandleFunc("DELETE /api/v1/cache", func(w http.ResponseWriter, r *http.Request) {
			deleted, err := cache.Invalidate(r.Context(), clf.ID())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, "{\"deleted\": %d}\n", deleted)
		})
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
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
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("stability server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("stability server stopped")
}

func buildClassifier(cfg *config.Config, m *metrics.Metrics) (classifier.Classifier, error) {
	switch cfg.Classifier.Kind {
	case "remote":
		breakerCfg := resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, state resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			},
		}
		return remote.New(cfg.Classifier, breakerCfg)
	default:
		return linear.Load(cfg.Classifier.ModelPath)
	}
}

func buildExplainer(cfg *config.Config) explain.Explainer {
	if cfg.Explainer.Method == "shap" {
		return shap.New(cfg.Explainer.Samples, cfg.Evaluator.Seed)
	}
	return lime.New(cfg.Explainer.Samples, cfg.Evaluator.Seed)
}

func loadThesaurus(path string) (*thesaurus.Thesaurus, error) {
	if path == "" {
		return thesaurus.Embedded(), nil
	}
	return thesaurus.Load(path)
}

// classifierCheck pings remote classifiers; in-process models are always up.
func classifierCheck(clf classifier.Classifier) health.Check {
	pinger, ok := clf.(interface{ Ping(context.Context) error })
	return func(ctx context.Context) health.ComponentHealth {
		if !ok {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-process model"}
		}
		if err := pinger.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
