//go:build integration

package docstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/docstore"
)

func TestPostgres_InsertGetQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	id := uuid.NewString()
	err := tcStore.Insert(ctx, docstore.CollectionOrders, id, docstore.Record{
		"status":      "pendingDelivery",
		"deliveryFee": 12.5,
	})
	require.NoError(t, err)

	doc, err := tcStore.Get(ctx, docstore.CollectionOrders, id)
	require.NoError(t, err)
	require.Equal(t, id, doc["id"])
	require.Equal(t, "pendingDelivery", doc["status"])

	err = tcStore.Insert(ctx, docstore.CollectionOrders, id, docstore.Record{})
	require.ErrorIs(t, err, apperr.ErrConflict, "duplicate insert must conflict")

	matches, err := tcStore.Query(ctx, docstore.CollectionOrders, docstore.Predicate{
		Eq: map[string]any{"status": "pendingDelivery", "deliveryFee": 12.5},
	})
	require.NoError(t, err)
	found := false
	for _, m := range matches {
		if m["id"] == id {
			found = true
		}
	}
	require.True(t, found, "inserted doc must match its own predicate")
}

func TestPostgres_ConditionalUpdateArbitratesRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, tcStore.Insert(ctx, docstore.CollectionDeliveries, id, docstore.Record{
		"status": "pendingDriver",
	}))

	guard := docstore.Predicate{
		Eq:      map[string]any{"status": "pendingDriver"},
		Missing: []string{"driverId"},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, driver := range []string{"drv-a", "drv-b"} {
		wg.Add(1)
		go func(i int, driver string) {
			defer wg.Done()
			errs[i] = tcStore.ConditionalUpdate(ctx, docstore.CollectionDeliveries, id, guard, docstore.Record{
				"status":   "inDelivery",
				"driverId": driver,
			})
		}(i, driver)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	require.Equal(t, 1, winners, "exactly one concurrent accept must win")

	doc, err := tcStore.Get(ctx, docstore.CollectionDeliveries, id)
	require.NoError(t, err)
	require.Equal(t, "inDelivery", doc["status"])
	require.Contains(t, []any{"drv-a", "drv-b"}, doc["driverId"])
}

func TestPostgres_ConditionalUpdateMissingDoc(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	err := tcStore.ConditionalUpdate(ctx, docstore.CollectionDeliveries, uuid.NewString(),
		docstore.Predicate{}, docstore.Record{"status": "inDelivery"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgres_IncrementFlooredAtZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, tcStore.Insert(ctx, docstore.CollectionDrivers, id, docstore.Record{"name": "Test"}))

	v, err := tcStore.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", 1)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = tcStore.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", -1)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	v, err = tcStore.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", -1)
	require.NoError(t, err)
	require.Equal(t, 0, v, "decrement below zero must floor at zero")
}

func TestPostgres_WithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, tcStore.Insert(ctx, docstore.CollectionDrivers, id, docstore.Record{"activeDeliveries": 3}))

	err := tcStore.WithTx(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", 4); err != nil {
			return err
		}
		return apperr.ErrConflict
	})
	require.ErrorIs(t, err, apperr.ErrConflict)

	doc, err := tcStore.Get(ctx, docstore.CollectionDrivers, id)
	require.NoError(t, err)
	require.EqualValues(t, 3, doc["activeDeliveries"])
}

func TestPostgres_SubscribeSeesCommittedChanges(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := "pending-" + uuid.NewString()
	pred := docstore.Predicate{Eq: map[string]any{"status": status}}

	ch, err := tcStore.Subscribe(ctx, docstore.CollectionDeliveries, pred)
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.Empty(t, snap, "initial snapshot must be empty")
	case <-ctx.Done():
		t.Fatal("no initial snapshot")
	}

	id := uuid.NewString()
	require.NoError(t, tcStore.Insert(ctx, docstore.CollectionDeliveries, id, docstore.Record{"status": status}))

	deadline := time.After(8 * time.Second)
	for {
		select {
		case snap := <-ch:
			if len(snap) == 1 && snap[0]["id"] == id {
				return
			}
		case <-deadline:
			t.Fatal("subscription never delivered the inserted document")
		}
	}
}
