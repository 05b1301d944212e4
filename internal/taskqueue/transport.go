package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Transport moves tasks from producers to consumers.
type Transport interface {
	Publish(ctx context.Context, t Task) error
	// Consume calls deliver for each task until ctx is done.
	Consume(ctx context.Context, deliver func(Task)) error
	Close() error
}

// ── NATS ───────────────────────────────────────────────────────────────────

const (
	subjectPrefix = "tasks."
	queueGroup    = "matchd-workers"
)

// NATS publishes tasks on tasks.<name> and consumes them through a queue
// group, so each task is handled by one worker process.
type NATS struct {
	nc  *nats.Conn
	log *zap.Logger
}

// NewNATS connects to url.
func NewNATS(url string, log *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("matchd"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{nc: nc, log: log.Named("nats")}, nil
}

func (n *NATS) Publish(_ context.Context, t Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := n.nc.Publish(subjectPrefix+t.Name, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", t.Name, err)
	}
	return nil
}

func (n *NATS) Consume(ctx context.Context, deliver func(Task)) error {
	sub, err := n.nc.QueueSubscribe(subjectPrefix+"*", queueGroup, func(msg *nats.Msg) {
		var t Task
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			n.log.Warn("dropping malformed task", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		deliver(t)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		n.log.Warn("nats drain failed", zap.Error(err))
	}
	return nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}

// ── In-process ─────────────────────────────────────────────────────────────

// Local is a bounded in-memory queue for single-process deployments.
type Local struct {
	ch        chan Task
	closeOnce sync.Once
	done      chan struct{}
}

// NewLocal returns a Local holding at most size pending tasks.
func NewLocal(size int) *Local {
	return &Local{ch: make(chan Task, size), done: make(chan struct{})}
}

// Publish blocks while the queue is full.
func (l *Local) Publish(ctx context.Context, t Task) error {
	select {
	case l.ch <- t:
		return nil
	case <-l.done:
		return fmt.Errorf("local queue closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Consume(ctx context.Context, deliver func(Task)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case t := <-l.ch:
			deliver(t)
		}
	}
}

func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Len returns the number of queued tasks.
func (l *Local) Len() int { return len(l.ch) }
