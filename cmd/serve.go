package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/chat"
	"jobboard/matching-service/internal/grpcserver"
	"jobboard/matching-service/internal/httpapi"
	"jobboard/matching-service/internal/outbox"
	"jobboard/matching-service/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, live chat and gRPC health, and drain the outbox",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.settings.Listen(ctx)
	}()

	// ── In-process workers ──────────────────────────────────────────────────
	if cfg.NatsURL == "" {
		c.registerHandlers()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.runner.Run(ctx); err != nil {
				log.Error("task runner stopped", zap.Error(err))
			}
		}()
	}

	// ── Scheduler ───────────────────────────────────────────────────────────
	drainer := outbox.NewDrainer(c.pool, c.runner, c.rdb, cfg.OutboxCoalesceWindow, log)
	sched := scheduler.New(log)
	jobs := []scheduler.Job{
		scheduler.OutboxDrain(drainer, cfg.OutboxPollInterval),
		scheduler.OutboxPrune(drainer, outboxRetention, log),
		scheduler.AlertRedelivery(c.matcher, cfg.AlertRedeliveryInterval, alertRedeliveryLimit),
	}
	if c.sink != nil {
		jobs = append(jobs, scheduler.AnalyticsFlush(c.sink, analyticsFlushEvery))
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── gRPC health ─────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	health := grpcserver.New(map[string]grpcserver.Check{
		"postgres": c.pool.Ping,
		"redis":    func(ctx context.Context) error { return c.rdb.Ping(ctx).Err() },
		"mongo":    func(ctx context.Context) error { return c.mongo.Client().Ping(ctx, nil) },
	}, 0, log)
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// ── HTTP server ─────────────────────────────────────────────────────────
	hub := chat.NewHub(c.threads, c.docs, chat.NewRedisGroups(c.rdb, log), c.runner, log)
	router := httpapi.NewRouter(httpapi.Deps{
		Matcher:       c.matching,
		Scores:        c.scores,
		Candidates:    c.catalog,
		Alerts:        c.alerts,
		Notifications: c.notify,
		Membership:    c.threads,
		Messages:      c.docs,
		Chat:          hub,
		Settings:      c.settings,
		Parked:        c.parking,
		Service:       "matching-service",
		Version:       version,
		Logger:        log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", zap.Error(err))
	}
	health.Stop()
	sched.Stop(shutdownCtx)
	wg.Wait()
	c.flushAnalytics()

	log.Info("stopped")
	return nil
}
