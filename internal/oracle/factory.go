package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/config"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/secrets"
)

const memoryCacheSize = 1024

// Timeout bounds every call to the wrapped oracle. A call that runs out of
// time reports the provider as unavailable.
type Timeout struct {
	Oracle
	d time.Duration
}

// WithTimeout wraps next so each call is limited to d.
func WithTimeout(next Oracle, d time.Duration) *Timeout {
	return &Timeout{Oracle: next, d: d}
}

func (t *Timeout) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	vec, err := t.Oracle.Embed(ctx, text)
	return vec, t.classify(ctx, err)
}

func (t *Timeout) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	out, err := t.Oracle.GenerateJSON(ctx, prompt, schema)
	return out, t.classify(ctx, err)
}

func (t *Timeout) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && apperr.KindOf(err) != apperr.KindProviderUnavailable {
		return apperr.Unavailable("oracle", fmt.Errorf("timed out after %s: %w", t.d, err))
	}
	return err
}

// New builds the oracle chain for cfg: provider, timeout, persistent cache
// (when conn is non-nil) and in-process cache. Providers without credentials
// degrade to Disabled with a warning instead of failing startup.
func New(ctx context.Context, cfg *config.Config, conn db.DBTX, log *zap.Logger) (Oracle, error) {
	base, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if IsDisabled(base) {
		if cfg.EmbeddingProvider != config.ProviderNone {
			log.Warn("embedding provider has no credentials, semantic scoring disabled",
				zap.String("provider", cfg.EmbeddingProvider))
		}
		return base, nil
	}

	var o Oracle = WithTimeout(base, cfg.OracleTimeout)
	if conn != nil {
		o = NewPersistentCache(o, conn, log)
	}
	return NewMemoryCache(o, memoryCacheSize), nil
}

func newProvider(ctx context.Context, cfg *config.Config) (Oracle, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderMock:
		return Mock{}, nil
	case config.ProviderNone:
		return Disabled{}, nil
	}

	src, _ := cfg.APIKeySource()
	if !secrets.Configured(src) {
		return Disabled{}, nil
	}
	key, err := secrets.Load(src)
	if err != nil {
		return nil, err
	}

	switch cfg.EmbeddingProvider {
	case config.ProviderGoogle:
		return NewGoogle(ctx, key, cfg.EmbeddingModel, cfg.GenerationModel)
	case config.ProviderOpenAI:
		return NewOpenAI(key, cfg.EmbeddingModel, cfg.GenerationModel)
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}
