package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/database"
	"github.com/reviewlens/reviewlens/internal/docstore"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/logging"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/scoring"
	"github.com/reviewlens/reviewlens/internal/server"
	"github.com/reviewlens/reviewlens/internal/warehouse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Msg("Starting ReviewLens API server")

	// Initialize Prometheus metrics
	monitoring.Init()
	log.Info().Msg("Prometheus metrics initialized")

	ctx := context.Background()

	// Warehouse
	if cfg.Warehouse.AutoMigrate {
		if err := database.RunMigrations(cfg.Warehouse.URL); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate warehouse")
		}
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to warehouse")
	}
	defer wh.Close()

	deps := server.Deps{Reviews: wh}
	pipeDeps := pipeline.Deps{Reviews: wh}

	// Rejection log and run metadata
	var docs *docstore.Store
	if cfg.Mongo.URI != "" {
		docs, err = docstore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer docs.Close(context.Background())

		if err := docs.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
		}
		if cfg.Mongo.LogLevel != "" {
			level, err := zerolog.ParseLevel(cfg.Mongo.LogLevel)
			if err != nil {
				log.Fatal().Err(err).Str("level", cfg.Mongo.LogLevel).Msg("Invalid MONGODB_LOG_LEVEL")
			}
			logging.Setup(&cfg.Logging, cfg.Server.Env, docs.LogWriter(level))
		}
		deps.Runs = docs
		pipeDeps.Rejections = docs
		pipeDeps.Runs = docs
	} else {
		log.Warn().Msg("MONGODB_URI not set, run metadata endpoints and pipeline triggers are disabled")
	}

	// Response cache and rate limiter
	if cfg.Redis.URL != "" {
		redis, err := cache.NewFromURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redis.Close()

		responses := cache.NewBreaker(redis.WithPrefix("reviewlens:api:"), nil)
		deps.Cache = responses
		deps.Limiter = cache.NewRateLimiter(redis, cfg.RateLimit.RequestsPerWindow, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
		pipeDeps.Cache = responses
	} else {
		log.Warn().Msg("REDIS_URL not set, response caching and rate limiting are disabled")
	}

	// Scoring
	scoringCfg, err := scoring.LoadConfig(cfg.Pipeline.ScoringConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Pipeline.ScoringConfigPath).Msg("Failed to load scoring config")
	}
	scorer, err := scoring.NewScorer(scoringCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring config")
	}
	deps.Scorer = scorer
	pipeDeps.Scorer = scorer

	// Pipeline and scheduler
	var scheduler *pipeline.Scheduler
	if docs != nil {
		source, closeSource, err := extract.Open(cfg, logging.NewLogger("extract"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open extract source")
		}
		defer closeSource()
		pipeDeps.Source = source

		pipe, err := pipeline.New(pipeDeps, pipeline.Options{
			PipelineVersion: cfg.Pipeline.Version,
			ProductFilter:   cfg.Pipeline.ProductFilter,
			SkipScoring:     cfg.Pipeline.SkipScoring,
		}, logging.NewLogger("pipeline"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create pipeline")
		}
		deps.Pipeline = pipe

		if cfg.Pipeline.Schedule > 0 {
			scheduler = pipeline.NewScheduler(pipe, &pipeline.SchedulerConfig{
				Interval:   cfg.Pipeline.Schedule,
				RunOnStart: false,
				RunTimeout: cfg.Pipeline.RunTimeout,
			}, logging.NewLogger("scheduler"))
			if err := scheduler.Start(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to start pipeline scheduler")
			}
			deps.Scheduler = scheduler
		}
	}

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	// Create and start server
	srv := server.NewAPIServer(cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
