package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"

	"ferry77-dispatch/internal/config"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/service/driverstatus"
	"ferry77-dispatch/internal/transport/kafka"
)

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		newGeoPort,
		newOrdersProcessor,
		makeOrdersHandle,
		newOrdersConsumer,
	)
}

// WorkerRunner runs the order-event consumer and the counter reconciler.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun starts the worker using the provided DI container
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger logx.Logger,
	cfg *config.Config,
	consumer *kafka.Consumer,
	drivers *driverstatus.Service,
) error {
	defer closeWorker(pool, logger, consumer)

	logger.Info("dispatch-worker started",
		logx.Bool("kafka", consumer != nil),
		logx.Duration("reconcile_interval", cfg.Dispatch.ReconcileInterval),
	)

	// A nil consumer (no brokers configured) returns immediately; the worker
	// then only reconciles counters.
	consumeErr := make(chan error, 1)
	go func() { consumeErr <- consumer.Run(ctx) }()

	ticker := time.NewTicker(cfg.Dispatch.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-consumeErr:
			if err != nil {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			consumeErr = nil
		case <-ticker.C:
			n, err := drivers.RecomputeAll(ctx)
			if err != nil {
				logger.Warn("counter reconciliation failed", logx.Err(err))
				continue
			}
			logger.Info("driver counters reconciled", logx.Int("drivers", n))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func closeWorker(pool *pgxpool.Pool, logger logx.Logger, kafkaConsumer *kafka.Consumer) {
	if err := kafkaConsumer.Close(); err != nil {
		logger.Error("kafka close error", logx.Err(err))
	}
	if pool != nil {
		pool.Close()
	}
}
