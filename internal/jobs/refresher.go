// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/clinic-scheduler/internal/application"
	"github.com/example/clinic-scheduler/internal/logging"
)

// DefaultSchedule runs generation at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Generator materializes upcoming occurrences of every active series.
type Generator interface {
	GenerateAll(ctx context.Context) (application.BatchResult, error)
}

// GenerationRefresher keeps every active series generated ahead by running
// the generator on a cron schedule. Overlapping runs are skipped.
type GenerationRefresher struct {
	generator Generator
	schedule  string
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun *RunResult
}

// RunResult describes the most recent run.
type RunResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Batch     application.BatchResult
	Err       error
}

// NewGenerationRefresher constructs a refresher. Empty schedules use
// DefaultSchedule and non-positive timeouts use thirty seconds.
func NewGenerationRefresher(generator Generator, schedule string, timeout time.Duration, logger *slog.Logger) *GenerationRefresher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationRefresher{
		generator: generator,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger.With("component", "generation_refresher"),
	}
}

// Start registers the job and starts the cron scheduler.
func (r *GenerationRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	base := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(r.schedule, func() { r.RunOnce(base) }); err != nil {
		return fmt.Errorf("register generation schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.InfoContext(ctx, "generation refresher started", "schedule", r.schedule, "timeout", r.timeout.String())
	return nil
}

// Stop stops scheduling new runs and waits for a running one until ctx is done.
func (r *GenerationRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	stopped := c.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs the generator under the configured timeout.
func (r *GenerationRefresher) RunOnce(ctx context.Context) RunResult {
	logger := r.logger
	if fromCtx := logging.FromContext(ctx); fromCtx != nil {
		logger = fromCtx.With("component", "generation_refresher")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	runCtx = logging.ContextWithLogger(runCtx, logger)

	started := time.Now()
	batch, err := r.generator.GenerateAll(runCtx)
	result := RunResult{StartedAt: started, Duration: time.Since(started), Batch: batch, Err: err}

	r.mu.Lock()
	r.lastRun = &result
	r.mu.Unlock()

	if err != nil {
		logger.ErrorContext(ctx, "generation run failed",
			"error", err,
			"error_kind", application.ErrorKind(err),
			"series", batch.Series,
			"created", batch.Created,
		)
		return result
	}
	logger.InfoContext(ctx, "generation run completed",
		"series", batch.Series,
		"created", batch.Created,
		"skipped", batch.Skipped,
		"failed", batch.Failed,
		"duration", result.Duration.String(),
	)
	return result
}

// LastRun returns the most recent run, if any.
func (r *GenerationRefresher) LastRun() (RunResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return RunResult{}, false
	}
	return *r.lastRun, true
}
