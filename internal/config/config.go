// Package config loads and validates runtime configuration at startup.
// Fail-fast: a missing required value or an out-of-range knob is an error and
// the process exits before opening any connection.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"jobboard/matching-service/internal/secrets"
)

// Embedding providers recognised by the oracle factory.
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
	ProviderMock   = "mock"
)

// Config holds all runtime configuration for the matching service.
type Config struct {
	Port     string `mapstructure:"port"`
	GRPCPort string `mapstructure:"grpc_port"`

	DatabaseURL    string `mapstructure:"database_url"`
	RedisURL       string `mapstructure:"redis_url"`
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDB        string `mapstructure:"mongo_db"`
	NatsURL        string `mapstructure:"nats_url"`
	ClickHouseAddr string `mapstructure:"clickhouse_addr"`
	ClickHouseDB   string `mapstructure:"clickhouse_db"`
	ClickHouseUser string `mapstructure:"clickhouse_user"`
	ClickHousePass string `mapstructure:"clickhouse_password"`

	SemanticEnabled   bool          `mapstructure:"semantic_enabled"`
	EmbeddingProvider string        `mapstructure:"embedding_provider"`
	EmbeddingModel    string        `mapstructure:"embedding_model"`
	GenerationModel   string        `mapstructure:"generation_model"`
	GeminiAPIKey      string        `mapstructure:"gemini_api_key"`
	GeminiAPIKeyFile  string        `mapstructure:"gemini_api_key_file"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	OpenAIAPIKeyFile  string        `mapstructure:"openai_api_key_file"`
	OracleTimeout     time.Duration `mapstructure:"oracle_timeout"`

	MatchFanoutJobLimit       int `mapstructure:"match_fanout_job_limit"`
	MatchFanoutCandidateLimit int `mapstructure:"match_fanout_candidate_limit"`
	AlertScoreThreshold       int `mapstructure:"alert_score_threshold"`
	BatchMaxRecruiters        int `mapstructure:"batch_max_recruiters"`

	TaskMaxRetries  int           `mapstructure:"task_max_retries"`
	TaskBackoffBase time.Duration `mapstructure:"task_backoff_base"`
	TaskWorkers     int           `mapstructure:"task_workers"`

	OutboxPollInterval      time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxCoalesceWindow    time.Duration `mapstructure:"outbox_coalesce_window"`
	AlertRedeliveryInterval time.Duration `mapstructure:"alert_redelivery_interval"`

	LogJSON bool `mapstructure:"log_json"`
	Debug   bool `mapstructure:"debug"`
}

var defaults = map[string]any{
	"port":                         "8080",
	"grpc_port":                    "9090",
	"database_url":                 "",
	"redis_url":                    "",
	"mongo_uri":                    "",
	"mongo_db":                     "jobboard",
	"nats_url":                     "",
	"clickhouse_addr":              "",
	"clickhouse_db":                "analytics",
	"clickhouse_user":              "default",
	"clickhouse_password":          "",
	"semantic_enabled":             false,
	"embedding_provider":           ProviderGoogle,
	"embedding_model":              "text-embedding-004",
	"generation_model":             "gemini-2.0-flash",
	"gemini_api_key":               "",
	"gemini_api_key_file":          "",
	"openai_api_key":               "",
	"openai_api_key_file":          "",
	"oracle_timeout":               "10s",
	"match_fanout_job_limit":       5,
	"match_fanout_candidate_limit": 5,
	"alert_score_threshold":        50,
	"batch_max_recruiters":         100,
	"task_max_retries":             3,
	"task_backoff_base":            "1s",
	"task_workers":                 8,
	"outbox_poll_interval":         "2s",
	"outbox_coalesce_window":       "5s",
	"alert_redelivery_interval":    "10m",
	"log_json":                     false,
	"debug":                        false,
}

// Load reads the optional .env file, the optional config file, then the
// environment (which wins), and returns a validated Config.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.EmbeddingProvider = strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and knob ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}

	positives := []struct {
		name  string
		value int
	}{
		{"MATCH_FANOUT_JOB_LIMIT", c.MatchFanoutJobLimit},
		{"MATCH_FANOUT_CANDIDATE_LIMIT", c.MatchFanoutCandidateLimit},
		{"BATCH_MAX_RECRUITERS", c.BatchMaxRecruiters},
		{"TASK_MAX_RETRIES", c.TaskMaxRetries},
		{"TASK_WORKERS", c.TaskWorkers},
	}
	for _, p := range positives {
		if p.value < 1 {
			return fmt.Errorf("%s must be a positive integer, got %d", p.name, p.value)
		}
	}
	if c.AlertScoreThreshold < 0 || c.AlertScoreThreshold > 100 {
		return fmt.Errorf("ALERT_SCORE_THRESHOLD must be within [0,100], got %d", c.AlertScoreThreshold)
	}
	if c.OracleTimeout <= 0 || c.TaskBackoffBase <= 0 || c.OutboxPollInterval <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT, TASK_BACKOFF_BASE and OUTBOX_POLL_INTERVAL must be positive durations")
	}

	switch c.EmbeddingProvider {
	case ProviderGoogle, ProviderOpenAI, ProviderNone, ProviderMock:
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of google, openai, none, mock, got %q", c.EmbeddingProvider)
	}

	if c.SemanticEnabled {
		if src, ok := c.APIKeySource(); ok && !secrets.Configured(src) {
			return fmt.Errorf("%s (or %s_FILE) is required when SEMANTIC_ENABLED=true", src.Name, src.Name)
		}
	}
	return nil
}

// APIKeySource returns the credential source for the configured provider.
// ok is false for providers that need no credential.
func (c *Config) APIKeySource() (secrets.Source, bool) {
	switch c.EmbeddingProvider {
	case ProviderGoogle:
		return secrets.Source{Name: "GEMINI_API_KEY", Value: c.GeminiAPIKey, File: c.GeminiAPIKeyFile}, true
	case ProviderOpenAI:
		return secrets.Source{Name: "OPENAI_API_KEY", Value: c.OpenAIAPIKey, File: c.OpenAIAPIKeyFile}, true
	}
	return secrets.Source{}, false
}
