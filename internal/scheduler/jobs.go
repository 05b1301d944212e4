package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobboard/matching-service/internal/outbox"
)

// Drainer drains the outbox.
type Drainer interface {
	Drain(ctx context.Context) (outbox.Stats, error)
	Prune(ctx context.Context, age time.Duration) (int64, error)
}

// Redeliverer retries undelivered alert notifications.
type Redeliverer interface {
	Redeliver(ctx context.Context, limit int) (int, error)
}

// Flusher ships buffered analytics.
type Flusher interface {
	Flush(ctx context.Context) error
}

// OutboxDrain drains until a batch comes back empty or short, so a backlog
// clears within one tick.
func OutboxDrain(d Drainer, every time.Duration) Job {
	return Job{
		Name:       "outbox_drain",
		Every:      every,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			for ctx.Err() == nil {
				st, err := d.Drain(ctx)
				if err != nil {
					return err
				}
				if st.Rows < outbox.BatchSize {
					return nil
				}
			}
			return ctx.Err()
		},
	}
}

// OutboxPrune deletes dispatched rows older than retain.
func OutboxPrune(d Drainer, retain time.Duration, log *zap.Logger) Job {
	return Job{
		Name:  "outbox_prune",
		Every: time.Hour,
		Run: func(ctx context.Context) error {
			n, err := d.Prune(ctx, retain)
			if err != nil {
				return err
			}
			if n > 0 && log != nil {
				log.Info("outbox pruned", zap.Int64("rows", n))
			}
			return nil
		},
	}
}

// AlertRedelivery retries up to limit undelivered alert matches per run.
func AlertRedelivery(r Redeliverer, every time.Duration, limit int) Job {
	return Job{
		Name:  "alert_redelivery",
		Every: every,
		Run: func(ctx context.Context) error {
			_, err := r.Redeliver(ctx, limit)
			return err
		},
	}
}

// AnalyticsFlush ships buffered score events.
func AnalyticsFlush(f Flusher, every time.Duration) Job {
	return Job{
		Name:  "analytics_flush",
		Every: every,
		Run:   f.Flush,
	}
}
