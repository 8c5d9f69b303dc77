package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/database"
	"github.com/reviewlens/reviewlens/internal/docstore"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/logging"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/report"
	"github.com/reviewlens/reviewlens/internal/scoring"
	"github.com/reviewlens/reviewlens/internal/warehouse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Parse command line flags; they override the environment
	var (
		dryRun   bool
		schedule bool
	)
	flag.StringVar(&cfg.Pipeline.ScoringConfigPath, "config", cfg.Pipeline.ScoringConfigPath, "Path to the scoring YAML")
	flag.StringVar(&cfg.Pipeline.ProductFilter, "product", cfg.Pipeline.ProductFilter, "Process only this product id")
	flag.StringVar(&cfg.Pipeline.Source, "source", cfg.Pipeline.Source, "Extract source: postgres or csv")
	flag.StringVar(&cfg.Pipeline.CSVDir, "csv-dir", cfg.Pipeline.CSVDir, "Directory holding the CSV dumps")
	flag.BoolVar(&cfg.Pipeline.SkipScoring, "skip-scoring", cfg.Pipeline.SkipScoring, "Validate only, store NULL scores")
	flag.BoolVar(&dryRun, "dry-run", false, "Process in memory without writing to any store")
	flag.BoolVar(&schedule, "schedule", false, "Keep running every PIPELINE_SCHEDULE until interrupted")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)
	monitoring.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := pipeline.Deps{}

	scoringCfg, err := scoring.LoadConfig(cfg.Pipeline.ScoringConfigPath)
	if err != nil && !cfg.Pipeline.SkipScoring {
		log.Fatal().Err(err).Str("path", cfg.Pipeline.ScoringConfigPath).Msg("Failed to load scoring config")
	}
	if err == nil {
		if deps.Scorer, err = scoring.NewScorer(scoringCfg); err != nil {
			log.Fatal().Err(err).Msg("Invalid scoring config")
		}
	}

	source, closeSource, err := extract.Open(cfg, logging.NewLogger("extract"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open extract source")
	}
	defer closeSource()
	deps.Source = source

	if !dryRun {
		closeStores := connectStores(ctx, cfg, &deps)
		defer closeStores()
	}

	pipe, err := pipeline.New(deps, pipeline.Options{
		PipelineVersion: cfg.Pipeline.Version,
		ProductFilter:   cfg.Pipeline.ProductFilter,
		DryRun:          dryRun,
		SkipScoring:     cfg.Pipeline.SkipScoring,
	}, logging.NewLogger("pipeline"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	if schedule {
		runScheduled(ctx, cfg, pipe)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
	defer cancel()

	stats, runErr := pipe.Run(runCtx)
	if stats != nil {
		if err := report.WriteRunSummary(os.Stdout, stats); err != nil {
			log.Error().Err(err).Msg("Failed to write run summary")
		}
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("Pipeline run failed")
		closeSource()
		os.Exit(1)
	}
}

// connectStores wires the warehouse, MongoDB and the Redis invalidator into deps
func connectStores(ctx context.Context, cfg *config.Config, deps *pipeline.Deps) func() {
	var closers []func()

	if cfg.Warehouse.AutoMigrate {
		if err := database.RunMigrations(cfg.Warehouse.URL); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate warehouse")
		}
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to warehouse")
	}
	closers = append(closers, func() { wh.Close() })
	deps.Reviews = wh

	if cfg.Mongo.URI == "" {
		log.Fatal().Msg("MONGODB_URI is required unless -dry-run is set")
	}
	docs, err := docstore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	closers = append(closers, func() { docs.Close(context.Background()) })
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
	deps.Rejections = docs
	deps.Runs = docs

	if cfg.Redis.URL != "" {
		redis, err := cache.NewFromURL(cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, API cache will not be invalidated")
		} else {
			closers = append(closers, func() { redis.Close() })
			deps.Cache = cache.NewBreaker(redis.WithPrefix("reviewlens:api:"), nil)
		}
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func runScheduled(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline) {
	scheduler := pipeline.NewScheduler(pipe, &pipeline.SchedulerConfig{
		Interval:   cfg.Pipeline.Schedule,
		RunOnStart: true,
		RunTimeout: cfg.Pipeline.RunTimeout,
	}, logging.NewLogger("scheduler"))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start pipeline scheduler")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping scheduler...")
	scheduler.Stop()
}
