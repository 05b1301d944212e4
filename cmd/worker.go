package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume background tasks: score fan-out, alert fan-out and chat persistence",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if cfg.NatsURL == "" {
		return errors.New("worker requires NATS_URL; without it serve runs the tasks in-process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	go c.settings.Listen(ctx)

	var sched *scheduler.Scheduler
	if c.sink != nil {
		sched = scheduler.New(log)
		if err := sched.Add(scheduler.AnalyticsFlush(c.sink, analyticsFlushEvery)); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	c.registerHandlers()
	log.Info("worker consuming tasks", zap.Int("workers", cfg.TaskWorkers))
	runErr := c.runner.Run(ctx)

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		sched.Stop(stopCtx)
		cancel()
	}
	c.flushAnalytics()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("worker stopped")
	return nil
}
