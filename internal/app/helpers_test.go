package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestConnectDbWithRetry_SucceedsAfterFailures(t *testing.T) {
	old := newPool
	t.Cleanup(func() { newPool = old })

	attempts := 0
	newPool = func(context.Context, string) (*pgxpool.Pool, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return &pgxpool.Pool{}, nil
	}

	pool, err := connectDbWithRetry(context.Background(), "postgres://x", 5, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, pool)
	require.Equal(t, 3, attempts)
}

func TestConnectDbWithRetry_ExhaustsRetries(t *testing.T) {
	old := newPool
	t.Cleanup(func() { newPool = old })

	newPool = func(context.Context, string) (*pgxpool.Pool, error) {
		return nil, errors.New("connection refused")
	}

	_, err := connectDbWithRetry(context.Background(), "postgres://x", 2, time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
}

func TestConnectDbWithRetry_StopsOnCancel(t *testing.T) {
	old := newPool
	t.Cleanup(func() { newPool = old })

	newPool = func(context.Context, string) (*pgxpool.Pool, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := connectDbWithRetry(ctx, "postgres://x", 5, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
