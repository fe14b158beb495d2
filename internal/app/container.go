package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"ferry77-dispatch/internal/config"
	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/http/handlers"
	"ferry77-dispatch/internal/http/router"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/metrics"
	"ferry77-dispatch/internal/repository"
	"ferry77-dispatch/internal/service/dispatch"
	"ferry77-dispatch/internal/service/driverstatus"
	"ferry77-dispatch/internal/service/feed"
	"ferry77-dispatch/internal/service/view"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error)
	logFatalf func(string, ...interface{})
	worker    bool
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect: connectDbWithRetry,
		logFatalf: log.Fatalf,
	}
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(
	fn func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// ForWorker registers the worker-only providers (Kafka consumer, geocoder).
func (b *ContainerBuilder) ForWorker() *ContainerBuilder {
	b.worker = true
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

// build builds and returns a new dig container
func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if b.worker {
		if err := registerWorker(container); err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
		return container, nil
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds the HTTP service container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds the worker container
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().ForWorker().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

type countersOut struct {
	dig.Out
	RateLimit prometheus.Counter `name:"rate_limit_exceeded_total"`
	Retries   prometheus.Counter `name:"gateway_retries_total"`
	Conflicts prometheus.Counter `name:"dispatch_conflicts_total"`
	Mirror    prometheus.Counter `name:"dispatch_mirror_failures_total"`
}

func newCounters() countersOut {
	return countersOut{
		RateLimit: metrics.NewRateLimitExceededTotal(),
		Retries:   metrics.NewGatewayRetriesTotal(),
		Conflicts: metrics.NewDispatchConflictsTotal(),
		Mirror:    metrics.NewMirrorFailuresTotal(),
	}
}

func registerCore(container *dig.Container, ctx context.Context) error {
	return provideAll(container,
		func() context.Context { return ctx },
		func() *log.Logger { return log.Default() },
		NewLogger,
		config.Load,
		newCounters,
	)
}

func registerDb(
	container *dig.Container,
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) error {
	providerDB := func(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
		return dbConnect(ctx, cfg.DB.DSN(), 10, time.Second)
	}
	providerStore := func(pool *pgxpool.Pool, cfg *config.Config) docstore.Store {
		return docstore.NewPostgres(pool, cfg.Dispatch.PollInterval)
	}
	return provideAll(container, providerDB, providerStore)
}

type dispatchIn struct {
	dig.In
	Store         docstore.Store
	Jobs          *repository.JobRepo
	Drivers       *repository.DriverRepo
	Notifications *repository.NotificationRepo
	Cfg           *config.Config
	Logger        logx.Logger
	Conflicts     prometheus.Counter `name:"dispatch_conflicts_total"`
	Mirror        prometheus.Counter `name:"dispatch_mirror_failures_total"`
}

func newDispatchService(in dispatchIn) *dispatch.Service {
	return dispatch.NewService(
		in.Store,
		in.Jobs,
		in.Drivers,
		in.Notifications,
		in.Cfg.Dispatch.OperationTimeout,
		in.Logger,
		in.Conflicts,
		in.Mirror,
	)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		repository.NewJobRepo,
		repository.NewDriverRepo,
		repository.NewNotificationRepo,
		newDispatchService,
		func(jobs *repository.JobRepo, drivers *repository.DriverRepo, cfg *config.Config, logger logx.Logger) *driverstatus.Service {
			return driverstatus.NewService(drivers, jobs, cfg.Dispatch.OperationTimeout, logger)
		},
		func(jobs *repository.JobRepo, drivers *repository.DriverRepo, cfg *config.Config, logger logx.Logger) *view.Service {
			return view.NewService(jobs, drivers, cfg.Dispatch.OperationTimeout, logger)
		},
		func(notifications *repository.NotificationRepo, cfg *config.Config, logger logx.Logger) *feed.Service {
			return feed.NewService(notifications, cfg.Dispatch.OperationTimeout, logger)
		},
	)
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		newPprofServer,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		handlers.New,
		handlers.NewDispatchUsecase,
		handlers.NewBoardUsecase,
		handlers.NewDriverUsecase,
		handlers.NewFeedUsecase,
		handlers.NewJobsHandler,
		handlers.NewDriverHandler,
		handlers.NewNotificationsHandler,
		router.New,
		serverProvider,
	)
}
