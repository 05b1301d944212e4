package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/logger"
)

const subscriptionBuffer = 64

// Groups is the channel layer connecting every socket of a thread.
type Groups interface {
	Publish(ctx context.Context, threadID int64, ev Event) error
	Subscribe(ctx context.Context, threadID int64) (Subscription, error)
	// NextSeq returns the next message sequence number of the thread.
	NextSeq(ctx context.Context, threadID int64) (int64, error)
}

// Subscription delivers a thread's events until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

func groupChannel(threadID int64) string { return "chat:thread:" + logger.IDString(threadID) }
func seqKey(threadID int64) string       { return "chat:seq:" + logger.IDString(threadID) }

// ─── Redis ───────────────────────────────────────────────────────────────────

// RedisConn is the part of *redis.Client the Redis channel layer uses.
type RedisConn interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisGroups shares thread groups across processes through Redis pub/sub.
type RedisGroups struct {
	rdb RedisConn
	log *zap.Logger
}

// NewRedisGroups returns a Redis-backed channel layer.
func NewRedisGroups(rdb RedisConn, log *zap.Logger) *RedisGroups {
	return &RedisGroups{rdb: rdb, log: logger.OrNop(log).Named("chat.groups")}
}

func (g *RedisGroups) Publish(ctx context.Context, threadID int64, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := g.rdb.Publish(ctx, groupChannel(threadID), payload).Err(); err != nil {
		return fmt.Errorf("chat publish: %w", err)
	}
	return nil
}

func (g *RedisGroups) Subscribe(ctx context.Context, threadID int64) (Subscription, error) {
	ps := g.rdb.Subscribe(ctx, groupChannel(threadID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("chat subscribe: %w", err)
	}
	sub := &redisSubscription{ps: ps, out: make(chan Event, subscriptionBuffer)}
	go sub.pump(g.log.With(zap.Int64(logger.FieldThreadID, threadID)))
	return sub, nil
}

func (g *RedisGroups) NextSeq(ctx context.Context, threadID int64) (int64, error) {
	n, err := g.rdb.Incr(ctx, seqKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("chat next seq: %w", err)
	}
	return n, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Event
}

func (s *redisSubscription) pump(log *zap.Logger) {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Warn("dropping malformed chat event", zap.Error(err))
			continue
		}
		select {
		case s.out <- ev:
		default:
			log.Warn("chat subscriber too slow, event dropped", zap.String("type", ev.Type))
		}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.out }
func (s *redisSubscription) Close() error         { return s.ps.Close() }

// ─── In-process ──────────────────────────────────────────────────────────────

// MemoryGroups keeps thread groups inside one process.
type MemoryGroups struct {
	mu   sync.Mutex
	subs map[int64]map[*memorySubscription]struct{}
	seq  map[int64]int64
}

// NewMemoryGroups returns an in-process channel layer.
func NewMemoryGroups() *MemoryGroups {
	return &MemoryGroups{
		subs: make(map[int64]map[*memorySubscription]struct{}),
		seq:  make(map[int64]int64),
	}
}

// Publish delivers to every subscriber without blocking; a full subscriber
// misses the event.
func (g *MemoryGroups) Publish(_ context.Context, threadID int64, ev Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for s := range g.subs[threadID] {
		select {
		case s.out <- ev:
		default:
		}
	}
	return nil
}

func (g *MemoryGroups) Subscribe(_ context.Context, threadID int64) (Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &memorySubscription{group: g, threadID: threadID, out: make(chan Event, subscriptionBuffer)}
	if g.subs[threadID] == nil {
		g.subs[threadID] = make(map[*memorySubscription]struct{})
	}
	g.subs[threadID][s] = struct{}{}
	return s, nil
}

func (g *MemoryGroups) NextSeq(_ context.Context, threadID int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq[threadID]++
	return g.seq[threadID], nil
}

type memorySubscription struct {
	group    *MemoryGroups
	threadID int64
	out      chan Event
	once     sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.group.mu.Lock()
		delete(s.group.subs[s.threadID], s)
		s.group.mu.Unlock()
		close(s.out)
	})
	return nil
}
