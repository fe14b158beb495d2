package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/repository"
	"ferry77-dispatch/internal/service/driverstatus"
	testlog "ferry77-dispatch/internal/testutil"
)

func TestWorkerRunner_MustRun_SwallowsCancel(t *testing.T) {
	t.Parallel()

	r := &WorkerRunner{runFn: func(*dig.Container) error { return context.Canceled }}
	require.NotPanics(t, func() { r.MustRun(nil) })

	r = &WorkerRunner{runFn: func(*dig.Container) error { return nil }}
	require.NotPanics(t, func() { r.MustRun(nil) })
}

func TestWorkerRunner_MustRun_PanicsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := &WorkerRunner{runFn: func(*dig.Container) error { return boom }}
	require.Panics(t, func() { r.MustRun(nil) })
}

func TestWorkerRun_ReconcilesUntilCancelled(t *testing.T) {
	t.Parallel()

	store := docstore.NewMemory()
	rec := testlog.New()
	drivers := repository.NewDriverRepo(store, rec.Logger())
	jobs := repository.NewJobRepo(store, rec.Logger())
	svc := driverstatus.NewService(drivers, jobs, time.Second, rec.Logger())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	cfg := testConfig()
	cfg.Dispatch.ReconcileInterval = 20 * time.Millisecond

	err := workerRun(ctx, nil, rec.Logger(), cfg, nil, svc)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, rec.Has("info", "driver counters reconciled"), "expected at least one reconcile pass")
}
