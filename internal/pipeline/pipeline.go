// Package pipeline wires extract, validation, scoring and the stores into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/analytics"
	"github.com/reviewlens/reviewlens/internal/logging"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/reviewlens/reviewlens/internal/scoring"
	"github.com/reviewlens/reviewlens/internal/validation"
	"github.com/rs/zerolog"
)

// Pipeline errors
var (
	ErrPipelineBusy  = errors.New("pipeline run already in progress")
	ErrMissingSource = errors.New("pipeline source is required")
	ErrMissingScorer = errors.New("scorer is required unless scoring is skipped")
	ErrMissingStore  = errors.New("review and rejection stores are required unless dry run")
)

// DefaultVersion is stamped on warehouse rows when no version is configured
const DefaultVersion = "1.0.0"

const recordRunTimeout = 10 * time.Second

// Source loads the joined review batch, optionally narrowed to one product
type Source interface {
	Load(ctx context.Context, productID string) ([]models.ReviewRecord, error)
}

// ReviewWriter replaces the warehouse contents with a run's accepted reviews
type ReviewWriter interface {
	ReplaceReviews(ctx context.Context, runID, version string, at time.Time, reviews []models.ScoredReview) (int, error)
}

// RejectionWriter appends to the rejection log
type RejectionWriter interface {
	InsertRejections(ctx context.Context, rejected []models.RejectedRecord) (int, error)
}

// RunRecorder persists run metadata
type RunRecorder interface {
	RecordRun(ctx context.Context, stats *models.RunStats) error
}

// CacheInvalidator drops cached read-API responses
type CacheInvalidator interface {
	Invalidate(ctx context.Context) (int, error)
}

// Deps are the collaborators of a pipeline. Runs and Cache are optional.
type Deps struct {
	Source     Source
	Reviews    ReviewWriter
	Rejections RejectionWriter
	Runs       RunRecorder
	Cache      CacheInvalidator
	Scorer     *scoring.Scorer
}

// Options control a pipeline's behaviour
type Options struct {
	PipelineVersion string
	ProductFilter   string
	DryRun          bool
	SkipScoring     bool
}

// Output is the result of processing one batch in memory
type Output struct {
	Accepted []models.ScoredReview
	Rejected []models.RejectedRecord
}

// RejectionsByReason counts rejected records per reason
func (o *Output) RejectionsByReason() map[models.RejectionReason]int {
	counts := make(map[models.RejectionReason]int, len(models.RejectionReasons))
	for _, rej := range o.Rejected {
		counts[rej.RejectionReason]++
	}
	return counts
}

// RelevantCount returns how many accepted reviews were classified RELEVANT
func (o *Output) RelevantCount() int {
	n := 0
	for i := range o.Accepted {
		if o.Accepted[i].RelevantStatus == models.StatusRelevant {
			n++
		}
	}
	return n
}

// Pipeline runs extract, validate, score and load. Only one run executes at a time.
type Pipeline struct {
	deps      Deps
	opts      Options
	validator *validation.Validator
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock overrides the time source for run timestamps and rejected_at
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline
func New(deps Deps, opts Options, logger zerolog.Logger, options ...Option) (*Pipeline, error) {
	if deps.Source == nil {
		return nil, ErrMissingSource
	}
	if deps.Scorer == nil && !opts.SkipScoring {
		return nil, ErrMissingScorer
	}
	if !opts.DryRun && (deps.Reviews == nil || deps.Rejections == nil) {
		return nil, ErrMissingStore
	}
	if opts.PipelineVersion == "" {
		opts.PipelineVersion = DefaultVersion
	}

	p := &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.validator = validation.NewValidator(validation.WithClock(p.now))
	return p, nil
}

// Options returns the pipeline's options
func (p *Pipeline) Options() Options {
	return p.opts
}

// IsRunning reports whether a run is in progress
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Process validates a batch and scores the accepted records. With SkipScoring the
// accepted records are passed through unscored. Nothing is persisted.
func (p *Pipeline) Process(batch []models.ReviewRecord) *Output {
	result := p.validator.Validate(batch)

	out := &Output{Rejected: result.Rejected}
	if p.opts.SkipScoring {
		out.Accepted = make([]models.ScoredReview, len(result.Accepted))
		for i, rec := range result.Accepted {
			out.Accepted[i] = models.ScoredReview{ReviewRecord: rec}
		}
		return out
	}
	out.Accepted = p.deps.Scorer.ScoreBatch(result.Accepted)
	return out
}

// Run executes a full run with the configured product filter
func (p *Pipeline) Run(ctx context.Context) (*models.RunStats, error) {
	return p.RunProduct(ctx, p.opts.ProductFilter)
}

// RunProduct executes a full run narrowed to productID (empty means every product).
// The returned stats are non-nil even when the run fails.
func (p *Pipeline) RunProduct(ctx context.Context, productID string) (*models.RunStats, error) {
	if !p.acquire() {
		return nil, ErrPipelineBusy
	}
	defer p.release()

	return p.runProduct(ctx, uuid.New().String(), productID)
}

// StartProduct begins a run in the background and returns its run id. done, when
// non-nil, receives the outcome once the run finishes. ErrPipelineBusy is returned
// synchronously when another run holds the pipeline.
func (p *Pipeline) StartProduct(ctx context.Context, productID string, done func(*models.RunStats, error)) (string, error) {
	if !p.acquire() {
		return "", ErrPipelineBusy
	}

	runID := uuid.New().String()
	go func() {
		stats, err := p.runProduct(ctx, runID, productID)
		p.release()
		if done != nil {
			done(stats, err)
		}
	}()
	return runID, nil
}

func (p *Pipeline) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) runProduct(ctx context.Context, runID, productID string) (*models.RunStats, error) {
	stats := &models.RunStats{
		RunID:           runID,
		PipelineVersion: p.opts.PipelineVersion,
		Status:          models.RunStatusSucceeded,
		StartedAt:       p.now().UTC(),
		ProductFilter:   productID,
	}
	logger := p.logger.With().Str("run_id", stats.RunID).Logger()
	logger.Info().Str("product_filter", productID).Bool("dry_run", p.opts.DryRun).Msg("Pipeline run started")

	err := p.execute(ctx, logger, stats)

	stats.FinishedAt = p.now().UTC()
	switch {
	case err != nil:
		stats.Status = models.RunStatusFailed
		stats.Error = err.Error()
	case p.opts.DryRun:
		stats.Status = models.RunStatusDryRun
	}

	if p.deps.Runs != nil && !p.opts.DryRun {
		// Timed-out runs are still recorded
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordRunTimeout)
		recErr := p.deps.Runs.RecordRun(recCtx, stats)
		cancel()
		if recErr != nil {
			logger.Error().Err(recErr).Msg("Failed to record run metadata")
			if err == nil {
				err = fmt.Errorf("record run: %w", recErr)
				stats.Status = models.RunStatusFailed
				stats.Error = err.Error()
			}
		}
	}

	if err == nil && !p.opts.DryRun && p.deps.Cache != nil {
		if n, cacheErr := p.deps.Cache.Invalidate(ctx); cacheErr != nil {
			logger.Warn().Err(cacheErr).Msg("Failed to invalidate API cache")
		} else {
			logger.Debug().Int("keys", n).Msg("API cache invalidated")
		}
	}

	monitoring.RecordPipelineRun(string(stats.Status), stats.Duration())
	logging.LogPipelineRun(logger, stats)
	return stats, err
}

func (p *Pipeline) execute(ctx context.Context, logger zerolog.Logger, stats *models.RunStats) error {
	batch, err := p.deps.Source.Load(ctx, stats.ProductFilter)
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}

	out := p.Process(batch)
	for i := range out.Rejected {
		out.Rejected[i].RunID = stats.RunID
	}

	stats.TotalRecords = len(batch)
	stats.CleanRecords = len(out.Accepted)
	stats.RejectedRecords = len(out.Rejected)
	stats.RejectionsByReason = out.RejectionsByReason()
	stats.RelevantRecords = out.RelevantCount()
	stats.Summary = analytics.Summarize(out.Accepted)

	monitoring.RecordRecords("total", stats.TotalRecords)
	monitoring.RecordRecords("accepted", stats.CleanRecords)
	monitoring.RecordRecords("rejected", stats.RejectedRecords)
	for reason, n := range stats.RejectionsByReason {
		monitoring.RecordRejections(string(reason), n)
	}
	for i := range out.Accepted {
		if out.Accepted[i].IsScored() {
			monitoring.RecordScore(out.Accepted[i].RelevanceScore, string(out.Accepted[i].RelevantStatus))
		}
	}
	logging.LogRejections(logger, stats.RunID, stats.RejectionsByReason)

	if p.opts.DryRun {
		return nil
	}

	inserted, err := p.deps.Reviews.ReplaceReviews(ctx, stats.RunID, stats.PipelineVersion, stats.StartedAt, out.Accepted)
	if err != nil {
		return fmt.Errorf("write warehouse: %w", err)
	}
	stats.WarehouseInserts = inserted
	monitoring.RecordStoreWrites("warehouse", inserted)

	logged, err := p.deps.Rejections.InsertRejections(ctx, out.Rejected)
	if err != nil {
		return fmt.Errorf("write rejections: %w", err)
	}
	stats.RejectionInserts = logged
	monitoring.RecordStoreWrites("rejections", logged)

	return nil
}
