package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
)

// Handler executes one task attempt.
type Handler func(ctx context.Context, t Task) error

// sleep waits for d or until ctx is done. Tests swap it out.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is the final state of a task execution.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeParked Outcome = "parked"
)

// Options tune a Runner.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	Workers     int
}

// Runner dispatches tasks to registered handlers.
type Runner struct {
	transport Transport
	parker    Parker
	opts      Options
	log       *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRunner returns a Runner. parker may be nil, in which case exhausted
// tasks are only logged.
func NewRunner(transport Transport, parker Parker, opts Options, log *zap.Logger) *Runner {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	return &Runner{
		transport: transport,
		parker:    parker,
		opts:      opts,
		log:       logger.OrNop(log).Named("tasks"),
		handlers:  make(map[string]Handler),
	}
}

// Register binds name to h, replacing any previous handler.
func (r *Runner) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Enqueue publishes a new task.
func (r *Runner) Enqueue(ctx context.Context, name string, payload any) error {
	t, err := NewTask(name, payload)
	if err != nil {
		return err
	}
	if err := r.transport.Publish(ctx, t); err != nil {
		return apperr.Transient("enqueue "+name, err)
	}
	r.log.Debug("task enqueued", logger.TaskFields(t.ID.String(), t.Name, 0)...)
	return nil
}

// Run consumes tasks until ctx is cancelled, executing at most
// Options.Workers of them at once. In-flight tasks finish before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	sem := make(chan struct{}, r.opts.Workers)
	var wg sync.WaitGroup

	err := r.transport.Consume(ctx, func(t Task) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.Execute(context.WithoutCancel(ctx), t)
		}()
	})
	wg.Wait()
	return err
}

// Backoff returns the delay before retrying after the given failed attempt.
func (r *Runner) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return r.opts.BackoffBase << (attempt - 1)
}

// Execute runs t to completion: retriable failures are retried with
// backoff, anything else parks the task.
func (r *Runner) Execute(ctx context.Context, t Task) Outcome {
	r.mu.RLock()
	h, ok := r.handlers[t.Name]
	r.mu.RUnlock()
	if !ok {
		r.park(ctx, t, apperr.Fatal("unknown task "+t.Name, nil))
		return OutcomeParked
	}

	for attempt := 1; ; attempt++ {
		t.Attempt = attempt
		log := logger.WithFields(r.log, logger.TaskFields(t.ID.String(), t.Name, attempt)...)

		err := r.invoke(ctx, h, t)
		if err == nil {
			log.Debug("task done")
			return OutcomeDone
		}

		if !apperr.Retriable(err) || attempt >= r.opts.MaxAttempts {
			log.Error("task failed", zap.Error(err), zap.String("kind", string(apperr.KindOf(err))))
			r.park(ctx, t, err)
			return OutcomeParked
		}

		delay := r.Backoff(attempt)
		log.Warn("task failed, retrying", zap.Error(err), zap.Duration("backoff", delay))
		if err := sleep(ctx, delay); err != nil {
			r.park(ctx, t, fmt.Errorf("retry interrupted: %w", err))
			return OutcomeParked
		}
	}
}

// invoke shields the runner from handler panics.
func (r *Runner) invoke(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperr.Fatal(fmt.Sprintf("panic: %v", p), nil)
		}
	}()
	return h(ctx, t)
}

func (r *Runner) park(ctx context.Context, t Task, cause error) {
	if r.parker == nil {
		return
	}
	if err := r.parker.Park(ctx, t, cause); err != nil {
		r.log.Error("park task failed",
			append(logger.TaskFields(t.ID.String(), t.Name, t.Attempt), zap.Error(errors.Join(cause, err)))...)
	}
}
