package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/model"
)

// Parker stores tasks that will not be retried.
type Parker interface {
	Park(ctx context.Context, t Task, cause error) error
}

// ParkedTask is a row of parked_tasks.
type ParkedTask struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	ParkedAt  time.Time       `json:"parked_at"`
}

// ParkingLot persists parked tasks in Postgres.
type ParkingLot struct {
	db db.DBTX
}

func NewParkingLot(conn db.DBTX) *ParkingLot {
	return &ParkingLot{db: conn}
}

// Park records t with the error that stopped it. Parking the same task
// again overwrites the previous entry.
func (p *ParkingLot) Park(ctx context.Context, t Task, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO parked_tasks (id, name, payload, attempts, last_error)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error, parked_at = now()`,
		t.ID, t.Name, []byte(t.Payload), t.Attempt, msg,
	)
	if err != nil {
		return fmt.Errorf("taskqueue.Park: %w", err)
	}
	return nil
}

// List returns parked tasks, newest first, with the total count.
func (p *ParkingLot) List(ctx context.Context, page model.Page) ([]ParkedTask, int, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, name, payload, attempts, last_error, parked_at, count(*) OVER ()
		 FROM parked_tasks
		 ORDER BY parked_at DESC
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("taskqueue.List query: %w", err)
	}

	var total int
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ParkedTask, error) {
		var (
			t       ParkedTask
			payload []byte
		)
		err := row.Scan(&t.ID, &t.Name, &payload, &t.Attempts, &t.LastError, &t.ParkedAt, &total)
		t.Payload = payload
		return t, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("taskqueue.List scan: %w", err)
	}
	return out, total, nil
}
