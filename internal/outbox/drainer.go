package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/taskqueue"
)

// Enqueuer publishes tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// Coalescer suppresses repeats across transactions. Satisfied by
// *redis.Client.
type Coalescer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Pool runs statements and transactions. Satisfied by *pgxpool.Pool.
type Pool interface {
	db.DBTX
	db.TxBeginner
}

// BatchSize is the number of rows one Drain claims.
const BatchSize = 500

// Drainer claims pending outbox rows and enqueues their tasks.
type Drainer struct {
	pool     Pool
	queue    Enqueuer
	coalesce Coalescer
	window   time.Duration
	batch    int
	log      *zap.Logger
}

// NewDrainer returns a Drainer. coalesce may be nil to disable
// cross-transaction coalescing.
func NewDrainer(pool Pool, queue Enqueuer, coalesce Coalescer, window time.Duration, log *zap.Logger) *Drainer {
	return &Drainer{
		pool:     pool,
		queue:    queue,
		coalesce: coalesce,
		window:   window,
		batch:    BatchSize,
		log:      logger.OrNop(log).Named("outbox"),
	}
}

// Stats summarizes one Drain call.
type Stats struct {
	Rows       int
	Enqueued   int
	Coalesced  int
	Dispatches int
}

// Drain processes one batch of pending rows. Rows are marked dispatched in
// the same transaction that claimed them; if any enqueue fails the batch is
// rolled back and retried on the next tick.
func (d *Drainer) Drain(ctx context.Context) (Stats, error) {
	var st Stats
	err := db.WithTx(ctx, d.pool, func(tx pgx.Tx) error {
		muts, err := d.claim(ctx, tx)
		if err != nil {
			return err
		}
		st.Rows = len(muts)
		if len(muts) == 0 {
			return nil
		}

		plan := Plan(muts)
		st.Dispatches = len(plan)
		for _, dp := range plan {
			sent, err := d.dispatch(ctx, dp)
			if err != nil {
				return err
			}
			if sent {
				st.Enqueued++
			} else {
				st.Coalesced++
			}
		}

		ids := make([]int64, len(muts))
		for i, m := range muts {
			ids[i] = m.ID
		}
		if _, err := tx.Exec(ctx,
			`UPDATE outbox SET dispatched_at = now() WHERE id = ANY($1)`, ids,
		); err != nil {
			return fmt.Errorf("outbox mark dispatched: %w", err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if st.Rows > 0 {
		d.log.Debug("outbox drained",
			zap.Int("rows", st.Rows),
			zap.Int("enqueued", st.Enqueued),
			zap.Int("coalesced", st.Coalesced))
	}
	return st, nil
}

func (d *Drainer) claim(ctx context.Context, tx pgx.Tx) ([]Mutation, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, txid, table_name, op, entity_id, job_status
		 FROM outbox
		 WHERE dispatched_at IS NULL
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		d.batch,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	muts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Mutation, error) {
		var m Mutation
		err := row.Scan(&m.ID, &m.TxID, &m.Table, &m.Op, &m.EntityID, &m.JobStatus)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox scan: %w", err)
	}
	return muts, nil
}

// dispatch enqueues dp unless an identical dispatch went out inside the
// coalescing window. sent is false when it was suppressed.
func (d *Drainer) dispatch(ctx context.Context, dp Dispatch) (sent bool, err error) {
	if d.coalesce != nil && d.window > 0 {
		fresh, err := d.coalesce.SetNX(ctx, dp.Key(), 1, d.window).Result()
		if err != nil {
			d.log.Warn("coalescing unavailable", zap.String("key", dp.Key()), zap.Error(err))
		} else if !fresh {
			return false, nil
		}
	}

	if err := d.queue.Enqueue(ctx, dp.Task, taskqueue.EntityPayload{ID: dp.EntityID}); err != nil {
		if d.coalesce != nil && d.window > 0 {
			_ = d.coalesce.Del(ctx, dp.Key()).Err()
		}
		return false, fmt.Errorf("outbox enqueue %s(%d): %w", dp.Task, dp.EntityID, err)
	}
	return true, nil
}

// Prune deletes dispatched rows older than age.
func (d *Drainer) Prune(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM outbox WHERE dispatched_at IS NOT NULL AND dispatched_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(age.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
