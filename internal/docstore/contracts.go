package docstore

import "context"

// Record is a raw schemaless document as stored in a collection. Returned
// records always carry their document ID under the "id" key.
type Record map[string]any

// Logical collections consumed by the dispatch core.
const (
	CollectionOrders        = "orders"
	CollectionDeliveries    = "deliveries"
	CollectionDrivers       = "drivers"
	CollectionNotifications = "notifications"
)

// Predicate selects documents by top-level field equality, optionally
// requiring fields to be absent (or null). It doubles as the guard of a
// conditional update.
type Predicate struct {
	Eq      map[string]any
	Missing []string
}

// Writer is the mutation surface shared by the store and its transactions.
// ConditionalUpdate applies changes only if the guard still matches,
// returning ErrConflict otherwise; this is the sole arbitration mechanism
// for concurrent accepts. Increment applies a server-side atomic delta
// floored at zero, so counter updates never lose concurrent writes.
type Writer interface {
	Insert(ctx context.Context, collection, id string, doc Record) error
	Update(ctx context.Context, collection, id string, changes Record) error
	ConditionalUpdate(ctx context.Context, collection, id string, guard Predicate, changes Record) error
	Increment(ctx context.Context, collection, id, field string, delta int) (int, error)
}

// Tx is the transactional view of the store. A status transition and its
// driver-counter delta commit or fail together through one Tx.
type Tx interface {
	Writer
	Get(ctx context.Context, collection, id string) (Record, error)
}

// Store abstracts the persistent document store: query, live subscription
// and guarded mutation over named collections.
type Store interface {
	Writer
	Get(ctx context.Context, collection, id string) (Record, error)
	Query(ctx context.Context, collection string, pred Predicate) ([]Record, error)

	// Subscribe delivers a fresh query snapshot whenever documents in the
	// collection change. The channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, collection string, pred Predicate) (<-chan []Record, error)

	// WithTx opens a transaction and executes fn within it.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Matches evaluates the predicate against a record.
func (p Predicate) Matches(doc Record) bool {
	for k, want := range p.Eq {
		got, ok := doc[k]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	for _, k := range p.Missing {
		if v, ok := doc[k]; ok && v != nil && v != "" {
			return false
		}
	}
	return true
}

// looseEqual compares scalars the way JSON round-tripping produces them:
// all numbers collapse to float64.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
