package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"ferry77-dispatch/internal/apperr"
)

func TestMemory_GetInjectsID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionOrders, "o-1", Record{"status": "pendingDelivery"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	doc, err := m.Get(ctx, CollectionOrders, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["id"] != "o-1" {
		t.Fatalf("id = %v, want o-1", doc["id"])
	}

	if _, err := m.Get(ctx, CollectionOrders, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing get err = %v, want ErrNotFound", err)
	}
}

func TestMemory_InsertDuplicateConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionOrders, "o-1", Record{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Insert(ctx, CollectionOrders, "o-1", Record{}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate insert err = %v, want ErrConflict", err)
	}
}

func TestMemory_ConditionalUpdateGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDeliveries, "d-1", Record{"status": "pendingDriver"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	guard := Predicate{
		Eq:      map[string]any{"status": "pendingDriver"},
		Missing: []string{"driverId"},
	}
	changes := Record{"status": "inDelivery", "driverId": "drv-1"}

	if err := m.ConditionalUpdate(ctx, CollectionDeliveries, "d-1", guard, changes); err != nil {
		t.Fatalf("first conditional update: %v", err)
	}
	// Second attempt fails both arms of the guard.
	if err := m.ConditionalUpdate(ctx, CollectionDeliveries, "d-1", guard, changes); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second conditional update err = %v, want ErrConflict", err)
	}
	if err := m.ConditionalUpdate(ctx, CollectionDeliveries, "missing", guard, changes); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing doc err = %v, want ErrNotFound", err)
	}

	doc, err := m.Get(ctx, CollectionDeliveries, "d-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["status"] != "inDelivery" || doc["driverId"] != "drv-1" {
		t.Fatalf("doc after update = %#v", doc)
	}
}

func TestMemory_ConditionalUpdateMissingTreatsEmptyAsAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDeliveries, "d-1", Record{"status": "pendingDriver", "driverId": ""}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	guard := Predicate{Missing: []string{"driverId"}}
	if err := m.ConditionalUpdate(ctx, CollectionDeliveries, "d-1", guard, Record{"driverId": "drv-9"}); err != nil {
		t.Fatalf("empty-string field should count as absent: %v", err)
	}
}

func TestMemory_IncrementFlooredAtZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDrivers, "drv-1", Record{}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	v, err := m.Increment(ctx, CollectionDrivers, "drv-1", "activeDeliveries", 1)
	if err != nil || v != 1 {
		t.Fatalf("increment = %d, %v; want 1, nil", v, err)
	}
	v, err = m.Increment(ctx, CollectionDrivers, "drv-1", "activeDeliveries", -1)
	if err != nil || v != 0 {
		t.Fatalf("decrement = %d, %v; want 0, nil", v, err)
	}
	v, err = m.Increment(ctx, CollectionDrivers, "drv-1", "activeDeliveries", -1)
	if err != nil || v != 0 {
		t.Fatalf("underflow decrement = %d, %v; want floor at 0", v, err)
	}
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDrivers, "drv-1", Record{"activeDeliveries": 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Increment(ctx, CollectionDrivers, "drv-1", "activeDeliveries", 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx err = %v, want boom", err)
	}

	doc, err := m.Get(ctx, CollectionDrivers, "drv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f, _ := toFloat(doc["activeDeliveries"]); f != 2 {
		t.Fatalf("activeDeliveries after rollback = %v, want 2", doc["activeDeliveries"])
	}
}

func TestMemory_WithTxCommitsAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDeliveries, "d-1", Record{"status": "pendingDriver"}); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if err := m.Insert(ctx, CollectionDrivers, "drv-1", Record{}); err != nil {
		t.Fatalf("insert driver: %v", err)
	}

	err := m.WithTx(ctx, func(tx Tx) error {
		guard := Predicate{Eq: map[string]any{"status": "pendingDriver"}, Missing: []string{"driverId"}}
		if err := tx.ConditionalUpdate(ctx, CollectionDeliveries, "d-1", guard, Record{"status": "inDelivery", "driverId": "drv-1"}); err != nil {
			return err
		}
		_, err := tx.Increment(ctx, CollectionDrivers, "drv-1", "activeDeliveries", 1)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	delivery, _ := m.Get(ctx, CollectionDeliveries, "d-1")
	if delivery["status"] != "inDelivery" {
		t.Fatalf("delivery status = %v", delivery["status"])
	}
	driver, _ := m.Get(ctx, CollectionDrivers, "drv-1")
	if f, _ := toFloat(driver["activeDeliveries"]); f != 1 {
		t.Fatalf("activeDeliveries = %v, want 1", driver["activeDeliveries"])
	}
}

func TestMemory_UpdateNilValueDeletesField(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if err := m.Insert(ctx, CollectionDeliveries, "d-1", Record{"driverId": "drv-1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Update(ctx, CollectionDeliveries, "d-1", Record{"driverId": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ := m.Get(ctx, CollectionDeliveries, "d-1")
	if _, ok := doc["driverId"]; ok {
		t.Fatalf("driverId should be removed, doc = %#v", doc)
	}
}

func TestMemory_SubscribeDeliversSnapshots(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	pred := Predicate{Eq: map[string]any{"status": "pendingDriver"}}
	ch, err := m.Subscribe(ctx, CollectionDeliveries, pred)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Initial snapshot is empty.
	select {
	case snap := <-ch:
		if len(snap) != 0 {
			t.Fatalf("initial snapshot = %d records, want 0", len(snap))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := m.Insert(ctx, CollectionDeliveries, "d-1", Record{"status": "pendingDriver"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	select {
	case snap := <-ch:
		if len(snap) != 1 || snap[0]["id"] != "d-1" {
			t.Fatalf("snapshot after insert = %#v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after insert")
	}

	// Leaving the predicate removes the record from the snapshot.
	if err := m.Update(ctx, CollectionDeliveries, "d-1", Record{"status": "inDelivery"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case snap := <-ch:
		if len(snap) != 0 {
			t.Fatalf("snapshot after status change = %#v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// One buffered snapshot may still drain; the channel must close after.
			if _, ok := <-ch; ok {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestMemory_SlowSubscriberKeepsLatestSnapshot(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	ch, err := m.Subscribe(ctx, CollectionOrders, Predicate{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-ch // drain initial snapshot

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := m.Insert(ctx, CollectionOrders, id, Record{"n": i}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	select {
	case snap := <-ch:
		if len(snap) != 5 {
			t.Fatalf("latest snapshot has %d records, want 5", len(snap))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestPredicate_Matches(t *testing.T) {
	t.Parallel()

	doc := Record{"status": "pendingDriver", "fee": float64(10), "driverId": ""}

	if !(Predicate{Eq: map[string]any{"status": "pendingDriver"}}).Matches(doc) {
		t.Fatal("equality should match")
	}
	if !(Predicate{Eq: map[string]any{"fee": 10}}).Matches(doc) {
		t.Fatal("int/float64 comparison should match")
	}
	if (Predicate{Eq: map[string]any{"status": "delivered"}}).Matches(doc) {
		t.Fatal("mismatched value should not match")
	}
	if !(Predicate{Missing: []string{"driverId", "absent"}}).Matches(doc) {
		t.Fatal("empty string and absent field should count as missing")
	}
	if (Predicate{Missing: []string{"status"}}).Matches(doc) {
		t.Fatal("populated field should not count as missing")
	}
}
