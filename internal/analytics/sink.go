// Package analytics buffers score events and ships them to ClickHouse in
// batches. Losing events is acceptable: the relational store stays the
// source of truth for scores.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Event is one persisted score.
type Event struct {
	JobID        int64
	CandidateID  int64
	Overall      float64
	Skill        float64
	Experience   float64
	Education    float64
	Location     float64
	Salary       float64
	Semantic     float64
	SemanticUsed bool
	Source       string
	CalculatedAt time.Time
}

// Recorder accepts events without blocking.
type Recorder interface {
	Record(Event)
}

// Nop discards events. Used when ClickHouse is not configured.
type Nop struct{}

func (Nop) Record(Event) {}

const defaultBufferSize = 10_000

// Open connects to ClickHouse and verifies the connection.
func Open(ctx context.Context, addr, database, user, password string) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return conn, nil
}

// Sink buffers events in memory until Flush.
type Sink struct {
	conn driver.Conn
	log  *zap.Logger
	max  int

	mu      sync.Mutex
	buf     []Event
	dropped int
}

// NewSink returns a Sink writing through conn.
func NewSink(conn driver.Conn, log *zap.Logger) *Sink {
	return &Sink{conn: conn, log: log.Named("analytics"), max: defaultBufferSize}
}

// CreateTable creates match_events when missing.
func (s *Sink) CreateTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_events (
			job_id UInt64,
			candidate_id UInt64,
			overall Float64,
			skill Float64,
			experience Float64,
			education Float64,
			location Float64,
			salary Float64,
			semantic Float64,
			semantic_used Bool,
			source LowCardinality(String),
			calculated_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (calculated_at, job_id)
	`)
}

// Record queues e. When the buffer is full the oldest event is dropped.
func (s *Sink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.max {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, e)
}

// Pending returns the number of queued events.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Flush sends queued events in one batch. On failure the events are put
// back in front of anything recorded meanwhile.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	events := s.buf
	s.buf = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.log.Warn("analytics buffer overflowed", zap.Int("dropped", dropped))
	}
	if len(events) == 0 {
		return nil
	}

	if err := s.send(ctx, events); err != nil {
		s.requeue(events)
		return err
	}
	s.log.Debug("analytics flushed", zap.Int("events", len(events)))
	return nil
}

func (s *Sink) send(ctx context.Context, events []Event) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO match_events")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, e := range events {
		if err := batch.Append(
			uint64(e.JobID),
			uint64(e.CandidateID),
			e.Overall,
			e.Skill,
			e.Experience,
			e.Education,
			e.Location,
			e.Salary,
			e.Semantic,
			e.SemanticUsed,
			e.Source,
			e.CalculatedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *Sink) requeue(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := append(events, s.buf...)
	if over := len(merged) - s.max; over > 0 {
		merged = merged[over:]
		s.dropped += over
	}
	s.buf = merged
}

// Close releases the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
