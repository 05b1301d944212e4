package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobboard/matching-service/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/jobboard")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
}

// ── Defaults ───────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SemanticEnabled {
		t.Error("SemanticEnabled should default to false")
	}
	if cfg.MatchFanoutJobLimit != 5 || cfg.MatchFanoutCandidateLimit != 5 {
		t.Errorf("fan-out limits = %d/%d, want 5/5", cfg.MatchFanoutJobLimit, cfg.MatchFanoutCandidateLimit)
	}
	if cfg.AlertScoreThreshold != 50 {
		t.Errorf("AlertScoreThreshold = %d, want 50", cfg.AlertScoreThreshold)
	}
	if cfg.BatchMaxRecruiters != 100 {
		t.Errorf("BatchMaxRecruiters = %d, want 100", cfg.BatchMaxRecruiters)
	}
	if cfg.TaskMaxRetries != 3 {
		t.Errorf("TaskMaxRetries = %d, want 3", cfg.TaskMaxRetries)
	}
	if cfg.OracleTimeout != 10*time.Second {
		t.Errorf("OracleTimeout = %v, want 10s", cfg.OracleTimeout)
	}
	if cfg.EmbeddingProvider != config.ProviderGoogle {
		t.Errorf("EmbeddingProvider = %q, want google", cfg.EmbeddingProvider)
	}
}

// ── Overrides ──────────────────────────────────────────────────────────────

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("SEMANTIC_ENABLED", "true")
	t.Setenv("EMBEDDING_PROVIDER", " Mock ")
	t.Setenv("MATCH_FANOUT_JOB_LIMIT", "50")
	t.Setenv("TASK_BACKOFF_BASE", "250ms")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if !cfg.SemanticEnabled {
		t.Error("SemanticEnabled should be true")
	}
	if cfg.EmbeddingProvider != config.ProviderMock {
		t.Errorf("EmbeddingProvider = %q, want mock", cfg.EmbeddingProvider)
	}
	if cfg.MatchFanoutJobLimit != 50 {
		t.Errorf("MatchFanoutJobLimit = %d, want 50", cfg.MatchFanoutJobLimit)
	}
	if cfg.TaskBackoffBase != 250*time.Millisecond {
		t.Errorf("TaskBackoffBase = %v, want 250ms", cfg.TaskBackoffBase)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t)

	path := filepath.Join(dir, "matchd.yaml")
	if err := os.WriteFile(path, []byte("alert_score_threshold: 70\nport: \"9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if cfg.AlertScoreThreshold != 70 || cfg.Port != "9000" {
		t.Errorf("file values not applied: threshold=%d port=%q", cfg.AlertScoreThreshold, cfg.Port)
	}
}

// ── Validation ─────────────────────────────────────────────────────────────

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL is required"},
		{"missing mongo", map[string]string{"MONGO_URI": ""}, "MONGO_URI is required"},
		{"zero fan-out", map[string]string{"MATCH_FANOUT_CANDIDATE_LIMIT": "0"}, "MATCH_FANOUT_CANDIDATE_LIMIT"},
		{"threshold range", map[string]string{"ALERT_SCORE_THRESHOLD": "120"}, "ALERT_SCORE_THRESHOLD"},
		{"unknown provider", map[string]string{"EMBEDDING_PROVIDER": "cohere"}, "EMBEDDING_PROVIDER"},
		{"semantic without key", map[string]string{"SEMANTIC_ENABLED": "true", "EMBEDDING_PROVIDER": "openai"}, "OPENAI_API_KEY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestAPIKeySource(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: config.ProviderGoogle, GeminiAPIKeyFile: "/run/secrets/gemini"}
	src, ok := cfg.APIKeySource()
	if !ok || src.Name != "GEMINI_API_KEY" || src.File != "/run/secrets/gemini" {
		t.Fatalf("unexpected source %+v ok=%v", src, ok)
	}

	cfg.EmbeddingProvider = config.ProviderNone
	if _, ok := cfg.APIKeySource(); ok {
		t.Fatal("none provider should not need a key")
	}
}
