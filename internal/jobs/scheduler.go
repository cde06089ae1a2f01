// Package jobs runs the periodic maintenance work of the billing service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"saas-billing/internal/pkg/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A run never overlaps the previous
// run of the same job.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

// Add schedules job. schedule accepts standard five-field expressions and
// descriptors such as @hourly.
func (s *Scheduler) Add(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow(context.Background(), job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), schedule, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name()), zap.String("schedule", schedule))
	return nil
}

// RunNow executes job once, recording its outcome.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	metrics.JobRuns.WithLabelValues(job.Name(), metrics.Outcome(err)).Inc()

	if err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name()), zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	s.logger.Debug("job finished", zap.String("job", job.Name()), zap.Duration("took", time.Since(start)))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, at most until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("jobs still running at shutdown")
	}
}
