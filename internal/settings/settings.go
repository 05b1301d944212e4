// Package settings stores runtime overrides for a few configuration knobs.
//
// Values live in the settings table. Each process caches them and drops the
// cache when a write is announced on the settings:invalidate channel.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
)

// InvalidateChannel carries the key of every changed setting.
const InvalidateChannel = "settings:invalidate"

// Recognised keys.
const (
	KeySemanticEnabled           = "semantic_enabled"
	KeyMatchFanoutJobLimit       = "match_fanout_job_limit"
	KeyMatchFanoutCandidateLimit = "match_fanout_candidate_limit"
	KeyAlertScoreThreshold       = "alert_score_threshold"
)

// Knobs are the effective values after overrides are applied.
type Knobs struct {
	SemanticEnabled           bool
	MatchFanoutJobLimit       int
	MatchFanoutCandidateLimit int
	AlertScoreThreshold       int
}

// Bus is the part of *redis.Client used for invalidation.
type Bus interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Store is a cached view over the settings table.
type Store struct {
	db       db.DBTX
	bus      Bus
	log      *zap.Logger
	defaults Knobs

	mu     sync.RWMutex
	cache  map[string]json.RawMessage
	loaded bool
}

// NewStore returns a Store. bus may be nil for a single process.
func NewStore(conn db.DBTX, bus Bus, defaults Knobs, log *zap.Logger) *Store {
	return &Store{db: conn, bus: bus, defaults: defaults, log: log.Named("settings")}
}

// All returns every stored override.
func (s *Store) All(ctx context.Context) (map[string]json.RawMessage, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out, nil
}

// Get returns the stored value of key. ok is false when no override exists.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok, nil
}

// Put validates and stores value under key, then announces the change.
func (s *Store) Put(ctx context.Context, key string, value json.RawMessage) error {
	if err := validate(key, value); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, []byte(value),
	); err != nil {
		return fmt.Errorf("settings.Put: %w", err)
	}

	s.Invalidate()
	if s.bus != nil {
		if err := s.bus.Publish(ctx, InvalidateChannel, key).Err(); err != nil {
			s.log.Warn("publish settings invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Invalidate drops the local cache.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.cache = nil
	s.mu.Unlock()
}

// Listen drops the cache whenever another process announces a write.
// It blocks until ctx is cancelled.
func (s *Store) Listen(ctx context.Context) {
	if s.bus == nil {
		return
	}
	sub := s.bus.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.log.Debug("settings invalidated", zap.String("key", msg.Payload))
			s.Invalidate()
		}
	}
}

// Knobs resolves the effective knob values. Lookup failures fall back to
// the configured defaults.
func (s *Store) Knobs(ctx context.Context) Knobs {
	k := s.defaults
	all, err := s.All(ctx)
	if err != nil {
		s.log.Warn("load settings failed, using defaults", zap.Error(err))
		return k
	}
	decode := func(key string, dst any) {
		raw, ok := all[key]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			s.log.Warn("ignoring malformed setting", zap.String("key", key), zap.Error(err))
		}
	}
	decode(KeySemanticEnabled, &k.SemanticEnabled)
	decode(KeyMatchFanoutJobLimit, &k.MatchFanoutJobLimit)
	decode(KeyMatchFanoutCandidateLimit, &k.MatchFanoutCandidateLimit)
	decode(KeyAlertScoreThreshold, &k.AlertScoreThreshold)
	return k
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := s.db.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return fmt.Errorf("settings load query: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("settings load scan: %w", err)
		}
		cache[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("settings load rows: %w", err)
	}

	s.mu.Lock()
	s.cache = cache
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func validate(key string, value json.RawMessage) error {
	switch key {
	case KeySemanticEnabled:
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return apperr.Validationf("%s must be a boolean", key)
		}
	case KeyMatchFanoutJobLimit, KeyMatchFanoutCandidateLimit:
		var n int
		if err := json.Unmarshal(value, &n); err != nil || n < 1 {
			return apperr.Validationf("%s must be a positive integer", key)
		}
	case KeyAlertScoreThreshold:
		var n int
		if err := json.Unmarshal(value, &n); err != nil || n < 0 || n > 100 {
			return apperr.Validationf("%s must be an integer within [0,100]", key)
		}
	default:
		return apperr.Validationf("unknown setting %q", key)
	}
	return nil
}
