package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/rs/zerolog"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context) (*models.RunStats, error)
}

// Scheduler runs the pipeline periodically
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	runOnStart bool
	logger     zerolog.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	lastRun    time.Time
	lastResult *models.RunStats
	lastError  error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// Interval between runs (default: 24 hours)
	Interval time.Duration
	// RunOnStart triggers a run as soon as the scheduler starts
	RunOnStart bool
	// RunTimeout bounds each run; zero means no deadline
	RunTimeout time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:   24 * time.Hour,
		RunOnStart: true,
	}
}

// NewScheduler creates a new pipeline scheduler
func NewScheduler(runner Runner, config *SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		runner:     runner,
		interval:   config.Interval,
		runTimeout: config.RunTimeout,
		runOnStart: config.RunOnStart,
		logger:     logger,
	}
}

// Start begins scheduled processing
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, stopCh)

	s.logger.Info().Dur("interval", s.interval).Msg("Pipeline scheduler started")
	return nil
}

// Stop stops scheduled processing and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Pipeline scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil {
		if errors.Is(err, ErrPipelineBusy) {
			s.logger.Warn().Msg("Skipping scheduled run, previous run still in progress")
			return
		}
		s.logger.Error().Err(err).Msg("Scheduled pipeline run failed")
	}
}

// RunNow triggers an immediate run and records its outcome
func (s *Scheduler) RunNow(ctx context.Context) (*models.RunStats, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	stats, err := s.runner.Run(ctx)
	if errors.Is(err, ErrPipelineBusy) {
		return nil, err
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = stats
	s.lastError = err
	s.mu.Unlock()

	return stats, err
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	Running          bool             `json:"running"`
	Interval         string           `json:"interval"`
	LastRun          *time.Time       `json:"last_run,omitempty"`
	LastResult       *models.RunStats `json:"last_result,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	NextScheduledRun *time.Time       `json:"next_scheduled_run,omitempty"`
}

// GetStatus returns the current status of the scheduler
func (s *Scheduler) GetStatus() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:    s.running,
		Interval:   s.interval.String(),
		LastResult: s.lastResult,
	}

	if !s.lastRun.IsZero() {
		lastRun := s.lastRun
		status.LastRun = &lastRun
		if s.running {
			next := lastRun.Add(s.interval)
			status.NextScheduledRun = &next
		}
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}

	return status
}
