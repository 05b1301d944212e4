package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/db"
)

// TextHash keys cached embeddings: sha256 over model and trimmed text.
func TextHash(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// MemoryCache keeps recent embeddings in process. Entries are evicted in
// insertion order once size is reached.
type MemoryCache struct {
	Oracle

	mu      sync.RWMutex
	size    int
	entries map[string][]float32
	order   []string
}

// NewMemoryCache wraps next with an in-process cache of at most size vectors.
func NewMemoryCache(next Oracle, size int) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{Oracle: next, size: size, entries: make(map[string][]float32, size)}
}

func (c *MemoryCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := TextHash(c.Model(), text)

	c.mu.RLock()
	vec, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := c.Oracle.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = vec
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PersistentCache stores embeddings in the embedding_cache table so they
// survive restarts and are shared between processes. Cache failures are
// logged and never fail the call.
type PersistentCache struct {
	Oracle

	db  db.DBTX
	log *zap.Logger
}

// NewPersistentCache wraps next with the Postgres-backed cache.
func NewPersistentCache(next Oracle, conn db.DBTX, log *zap.Logger) *PersistentCache {
	return &PersistentCache{Oracle: next, db: conn, log: log.Named("embedding_cache")}
}

func (c *PersistentCache) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.Model()
	hash := TextHash(model, text)

	var stored pgvector.Vector
	err := c.db.QueryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE text_hash = $1 AND model = $2`,
		hash, model,
	).Scan(&stored)
	switch {
	case err == nil:
		return stored.Slice(), nil
	case !errors.Is(err, pgx.ErrNoRows):
		c.log.Warn("embedding cache lookup failed", zap.Error(err))
	}

	vec, err := c.Oracle.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != Dimensions {
		return vec, nil
	}

	if _, err := c.db.Exec(ctx,
		`INSERT INTO embedding_cache (text_hash, model, embedding)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (text_hash, model) DO NOTHING`,
		hash, model, pgvector.NewVector(vec),
	); err != nil {
		c.log.Warn("embedding cache store failed", zap.Error(err))
	}
	return vec, nil
}
