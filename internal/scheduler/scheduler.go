// Package scheduler runs the service's periodic maintenance jobs on a cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/logger"
)

// Job is one periodic unit of work.
type Job struct {
	Name string
	// Every is the interval between runs.
	Every time.Duration
	// RunOnStart also runs the job once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler wraps robfig/cron. A run still in progress when its next tick
// fires is skipped.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
	log  *zap.Logger
}

// New returns a Scheduler with no jobs.
func New(log *zap.Logger) *Scheduler {
	log = logger.OrNop(log).Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:  log,
	}
}

// Add queues a job for Start. Jobs with a non-positive interval are
// rejected.
func (s *Scheduler) Add(j Job) error {
	if j.Every <= 0 {
		return fmt.Errorf("scheduler: job %q has no interval", j.Name)
	}
	if j.Run == nil {
		return fmt.Errorf("scheduler: job %q has no func", j.Name)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start registers every job and starts the cron. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs {
		j := j
		spec := "@every " + j.Every.String()
		if _, err := s.cron.AddFunc(spec, func() { s.run(ctx, j) }); err != nil {
			return fmt.Errorf("cron.AddFunc %s: %w", j.Name, err)
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	for _, j := range s.jobs {
		if j.RunOnStart {
			go s.run(ctx, j)
		}
	}
	return nil
}

// Stop halts the cron and waits for running jobs up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	s.log.Debug("job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
