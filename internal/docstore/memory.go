package docstore

import (
	"context"
	"sync"

	"ferry77-dispatch/internal/apperr"
)

// Memory is an in-process Store used by unit tests and local development.
// All operations, including transactions, serialize on one mutex, which
// gives the same guarded-update semantics as the Postgres implementation.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]Record
	subs []*memSub
}

type memSub struct {
	collection string
	pred       Predicate
	ch         chan []Record
	done       <-chan struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]Record)}
}

// Get returns a copy of a document.
func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(collection, id)
}

func (m *Memory) get(collection, id string) (Record, error) {
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneRecord(doc, id), nil
}

// Query returns copies of all documents matching the predicate.
func (m *Memory) Query(ctx context.Context, collection string, pred Predicate) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(collection, pred), nil
}

func (m *Memory) query(collection string, pred Predicate) []Record {
	out := make([]Record, 0)
	for id, doc := range m.data[collection] {
		if pred.Matches(doc) {
			out = append(out, cloneRecord(doc, id))
		}
	}
	return out
}

// Insert stores a new document. Inserting an existing ID is a conflict.
func (m *Memory) Insert(ctx context.Context, collection, id string, doc Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insert(collection, id, doc); err != nil {
		return err
	}
	m.notify(collection)
	return nil
}

func (m *Memory) insert(collection, id string, doc Record) error {
	coll := m.data[collection]
	if coll == nil {
		coll = make(map[string]Record)
		m.data[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return apperr.ErrConflict
	}
	coll[id] = cloneRecord(doc, "")
	return nil
}

// Update merges changes into an existing document.
func (m *Memory) Update(ctx context.Context, collection, id string, changes Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.update(collection, id, changes); err != nil {
		return err
	}
	m.notify(collection)
	return nil
}

func (m *Memory) update(collection, id string, changes Record) error {
	doc, ok := m.data[collection][id]
	if !ok {
		return apperr.ErrNotFound
	}
	applyChanges(doc, changes)
	return nil
}

// ConditionalUpdate merges changes only if the guard still matches.
func (m *Memory) ConditionalUpdate(ctx context.Context, collection, id string, guard Predicate, changes Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conditionalUpdate(collection, id, guard, changes); err != nil {
		return err
	}
	m.notify(collection)
	return nil
}

func (m *Memory) conditionalUpdate(collection, id string, guard Predicate, changes Record) error {
	doc, ok := m.data[collection][id]
	if !ok {
		return apperr.ErrNotFound
	}
	if !guard.Matches(doc) {
		return apperr.ErrConflict
	}
	applyChanges(doc, changes)
	return nil
}

// Increment applies a delta to a numeric field, floored at zero, and
// returns the new value.
func (m *Memory) Increment(ctx context.Context, collection, id, field string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.increment(collection, id, field, delta)
	if err != nil {
		return 0, err
	}
	m.notify(collection)
	return v, nil
}

func (m *Memory) increment(collection, id, field string, delta int) (int, error) {
	doc, ok := m.data[collection][id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	cur := 0
	if f, ok := toFloat(doc[field]); ok {
		cur = int(f)
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	doc[field] = float64(next)
	return next, nil
}

// WithTx runs fn against a snapshot of the store; mutations become visible,
// and subscribers fire, only when fn returns nil.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.cloneData()
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		m.data = snapshot
		return err
	}
	for c := range tx.touched() {
		m.notify(c)
	}
	return nil
}

type memTx struct {
	m       *Memory
	changed map[string]struct{}
}

func (t *memTx) touch(collection string) {
	if t.changed == nil {
		t.changed = make(map[string]struct{})
	}
	t.changed[collection] = struct{}{}
}

func (t *memTx) touched() map[string]struct{} { return t.changed }

func (t *memTx) Get(ctx context.Context, collection, id string) (Record, error) {
	return t.m.get(collection, id)
}

func (t *memTx) Insert(ctx context.Context, collection, id string, doc Record) error {
	t.touch(collection)
	return t.m.insert(collection, id, doc)
}

func (t *memTx) Update(ctx context.Context, collection, id string, changes Record) error {
	t.touch(collection)
	return t.m.update(collection, id, changes)
}

func (t *memTx) ConditionalUpdate(ctx context.Context, collection, id string, guard Predicate, changes Record) error {
	t.touch(collection)
	return t.m.conditionalUpdate(collection, id, guard, changes)
}

func (t *memTx) Increment(ctx context.Context, collection, id, field string, delta int) (int, error) {
	t.touch(collection)
	return t.m.increment(collection, id, field, delta)
}

// Subscribe registers a snapshot channel for the collection. An initial
// snapshot is delivered immediately.
func (m *Memory) Subscribe(ctx context.Context, collection string, pred Predicate) (<-chan []Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &memSub{
		collection: collection,
		pred:       pred,
		ch:         make(chan []Record, 1),
		done:       ctx.Done(),
	}
	m.subs = append(m.subs, sub)
	sub.ch <- m.query(collection, pred)

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}()

	return sub.ch, nil
}

// notify pushes fresh snapshots to subscribers of the collection. A slow
// receiver keeps only the latest snapshot; intermediate ones are dropped.
func (m *Memory) notify(collection string) {
	for _, sub := range m.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case <-sub.done:
			continue
		default:
		}
		snap := m.query(collection, sub.pred)
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}

func (m *Memory) cloneData() map[string]map[string]Record {
	out := make(map[string]map[string]Record, len(m.data))
	for c, coll := range m.data {
		cc := make(map[string]Record, len(coll))
		for id, doc := range coll {
			cc[id] = cloneRecord(doc, "")
		}
		out[c] = cc
	}
	return out
}

func cloneRecord(doc Record, id string) Record {
	out := make(Record, len(doc)+1)
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	if id != "" {
		out["id"] = id
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return cloneRecord(val, "")
	case map[string]any:
		return cloneRecord(Record(val), "")
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// applyChanges merges changes into doc; a nil value removes the field so
// guard predicates treat it as absent.
func applyChanges(doc, changes Record) {
	for k, v := range changes {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = cloneValue(v)
	}
}

var _ Store = (*Memory)(nil)
