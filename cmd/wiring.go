package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/alerts"
	"jobboard/matching-service/internal/analytics"
	"jobboard/matching-service/internal/catalog"
	"jobboard/matching-service/internal/chat"
	"jobboard/matching-service/internal/config"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/docstore"
	"jobboard/matching-service/internal/matching"
	"jobboard/matching-service/internal/matchstore"
	"jobboard/matching-service/internal/notify"
	"jobboard/matching-service/internal/oracle"
	"jobboard/matching-service/internal/settings"
	"jobboard/matching-service/internal/taskqueue"
	"jobboard/matching-service/internal/worker"
)

const (
	localQueueSize       = 1024
	analyticsFlushEvery  = 5 * time.Second
	outboxRetention      = 72 * time.Hour
	alertRedeliveryLimit = 100
	shutdownTimeout      = 10 * time.Second
)

// components is everything both commands share.
type components struct {
	cfg *config.Config
	log *zap.Logger

	pool      *pgxpool.Pool
	rdb       *redis.Client
	mongo     *mongo.Database
	transport taskqueue.Transport
	sink      *analytics.Sink

	settings *settings.Store
	catalog  *catalog.Store
	scores   *matchstore.Store
	matching *matching.Service
	alerts   *alerts.Store
	matcher  *alerts.Matcher
	notify   *notify.Service
	docs     *docstore.Store
	threads  *chat.ThreadStore
	parking  *taskqueue.ParkingLot
	runner   *taskqueue.Runner
}

// connect opens every backing store and builds the domain services. On
// failure whatever was already opened is closed again.
func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *components, err error) {
	c := &components{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	log.Info("connecting to PostgreSQL")
	if c.pool, err = db.NewPostgresPool(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	log.Info("connecting to Redis")
	if c.rdb, err = db.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ── MongoDB ─────────────────────────────────────────────────────────────
	log.Info("connecting to MongoDB", zap.String("database", cfg.MongoDB))
	if c.mongo, err = db.NewMongoDatabase(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}

	// ── Task transport ──────────────────────────────────────────────────────
	if cfg.NatsURL != "" {
		log.Info("connecting to NATS")
		if c.transport, err = taskqueue.NewNATS(cfg.NatsURL, log); err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
	} else {
		log.Info("NATS_URL not set, tasks run in-process")
		c.transport = taskqueue.NewLocal(localQueueSize)
	}

	// ── Analytics ───────────────────────────────────────────────────────────
	var recorder analytics.Recorder = analytics.Nop{}
	if cfg.ClickHouseAddr != "" {
		conn, err := analytics.Open(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePass)
		if err != nil {
			log.Warn("ClickHouse unavailable, match analytics disabled", zap.Error(err))
		} else {
			c.sink = analytics.NewSink(conn, log)
			if err := c.sink.CreateTable(ctx); err != nil {
				log.Warn("create match_events failed", zap.Error(err))
			}
			recorder = c.sink
		}
	}

	// ── Domain ──────────────────────────────────────────────────────────────
	orc, err := oracle.New(ctx, cfg, c.pool, log)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}

	c.settings = settings.NewStore(c.pool, c.rdb, settings.Knobs{
		SemanticEnabled:           cfg.SemanticEnabled,
		MatchFanoutJobLimit:       cfg.MatchFanoutJobLimit,
		MatchFanoutCandidateLimit: cfg.MatchFanoutCandidateLimit,
		AlertScoreThreshold:       cfg.AlertScoreThreshold,
	}, log)
	c.catalog = catalog.NewStore(c.pool)
	c.scores = matchstore.NewStore(c.pool)
	c.matching = matching.New(matching.Deps{
		Catalog:  c.catalog,
		Scores:   c.scores,
		InTx:     matching.PostgresTx(c.pool, c.scores),
		Oracle:   orc,
		Knobs:    c.settings,
		Events:   recorder,
		BatchMax: cfg.BatchMaxRecruiters,
		Logger:   log,
	})
	c.notify = notify.New(c.pool, c.rdb, log)
	c.alerts = alerts.NewStore(c.pool)
	c.matcher = alerts.NewMatcher(c.catalog, c.alerts, c.notify, c.settings, log)
	c.docs = docstore.New(c.mongo)
	c.threads = chat.NewThreadStore(c.pool)
	c.parking = taskqueue.NewParkingLot(c.pool)
	c.runner = taskqueue.NewRunner(c.transport, c.parking, taskqueue.Options{
		MaxAttempts: cfg.TaskMaxRetries,
		BackoffBase: cfg.TaskBackoffBase,
		Workers:     cfg.TaskWorkers,
	}, log)

	if err := c.docs.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return c, nil
}

// registerHandlers binds every background task to the runner.
func (c *components) registerHandlers() {
	h := &worker.Handlers{
		Targets:  c.catalog,
		Scorer:   c.matching,
		Alerts:   c.matcher,
		Messages: c.docs,
		Knobs:    c.settings,
		Log:      c.log,
	}
	h.Register(c.runner)
}

// flushAnalytics ships whatever is still buffered.
func (c *components) flushAnalytics() {
	if c.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.sink.Flush(ctx); err != nil {
		c.log.Warn("final analytics flush failed", zap.Error(err))
	}
}

func (c *components) close() {
	if c == nil {
		return
	}
	if c.transport != nil {
		_ = c.transport.Close()
	}
	if c.sink != nil {
		_ = c.sink.Close()
	}
	if c.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = c.mongo.Client().Disconnect(ctx)
		cancel()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
