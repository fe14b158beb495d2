package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ferry77-dispatch/internal/apperr"
)

// notifyChannel is the LISTEN/NOTIFY channel used to push change signals to
// subscribers. The payload is the collection name. All writes go through
// this store, so self-notification covers every mutation.
const notifyChannel = "docstore_changes"

// Postgres implements Store over a single jsonb documents table.
type Postgres struct {
	pool *pgxpool.Pool

	// pollInterval bounds subscription staleness if a NOTIFY is missed.
	pollInterval time.Duration
}

// NewPostgres creates a Postgres-backed document store.
func NewPostgres(pool *pgxpool.Pool, pollInterval time.Duration) *Postgres {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &Postgres{pool: pool, pollInterval: pollInterval}
}

// NewPool creates and pings a new pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the documents table and its containment index.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id         TEXT NOT NULL,
            doc        JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (collection, id)
        );
        CREATE INDEX IF NOT EXISTS documents_doc_idx ON documents USING gin (doc);
    `)
	if err != nil {
		return fmt.Errorf("migrate documents table: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Get returns a single document by ID.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Record, error) {
	return getDoc(ctx, p.pool, collection, id)
}

func getDoc(ctx context.Context, db execer, collection, id string) (Record, error) {
	var raw []byte
	err := db.QueryRow(ctx, `
        SELECT doc FROM documents WHERE collection = $1 AND id = $2
    `, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeDoc(raw, id)
}

// Query returns all documents in the collection matching the predicate.
func (p *Postgres) Query(ctx context.Context, collection string, pred Predicate) ([]Record, error) {
	sql, args, err := buildQuerySQL(collection, pred)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decodeDoc(raw, id)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func buildQuerySQL(collection string, pred Predicate) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, doc FROM documents WHERE collection = $1`)
	args := []any{collection}

	if len(pred.Eq) > 0 {
		guard, err := json.Marshal(pred.Eq)
		if err != nil {
			return "", nil, fmt.Errorf("marshal predicate: %w", err)
		}
		args = append(args, guard)
		fmt.Fprintf(&sb, ` AND doc @> $%d`, len(args))
	}
	for _, field := range pred.Missing {
		args = append(args, field)
		fmt.Fprintf(&sb, ` AND (NOT doc ? $%d OR doc->>$%d IS NULL OR doc->>$%d = '')`,
			len(args), len(args), len(args))
	}
	return sb.String(), args, nil
}

// Insert stores a new document.
func (p *Postgres) Insert(ctx context.Context, collection, id string, doc Record) error {
	return insertDoc(ctx, p.pool, collection, id, doc)
}

func insertDoc(ctx context.Context, db execer, collection, id string, doc Record) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = db.Exec(ctx, `
        INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
    `, collection, id, raw)
	if err != nil {
		if isDuplicate(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return notifyChange(ctx, db, collection)
}

// Update merges changes into an existing document.
func (p *Postgres) Update(ctx context.Context, collection, id string, changes Record) error {
	return updateDoc(ctx, p.pool, collection, id, changes)
}

func updateDoc(ctx context.Context, db execer, collection, id string, changes Record) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes %s/%s: %w", collection, id, err)
	}
	ct, err := db.Exec(ctx, `
        UPDATE documents
        SET doc = jsonb_strip_nulls(doc || $3), updated_at = now()
        WHERE collection = $1 AND id = $2
    `, collection, id, raw)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return notifyChange(ctx, db, collection)
}

// ConditionalUpdate merges changes only while the guard still matches the
// stored document. A row that exists but no longer matches is a conflict.
func (p *Postgres) ConditionalUpdate(ctx context.Context, collection, id string, guard Predicate, changes Record) error {
	return conditionalUpdateDoc(ctx, p.pool, collection, id, guard, changes)
}

func conditionalUpdateDoc(ctx context.Context, db execer, collection, id string, guard Predicate, changes Record) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes %s/%s: %w", collection, id, err)
	}

	var sb strings.Builder
	sb.WriteString(`
        UPDATE documents
        SET doc = jsonb_strip_nulls(doc || $3), updated_at = now()
        WHERE collection = $1 AND id = $2`)
	args := []any{collection, id, raw}

	if len(guard.Eq) > 0 {
		g, err := json.Marshal(guard.Eq)
		if err != nil {
			return fmt.Errorf("marshal guard: %w", err)
		}
		args = append(args, g)
		fmt.Fprintf(&sb, ` AND doc @> $%d`, len(args))
	}
	for _, field := range guard.Missing {
		args = append(args, field)
		fmt.Fprintf(&sb, ` AND (NOT doc ? $%d OR doc->>$%d IS NULL OR doc->>$%d = '')`,
			len(args), len(args), len(args))
	}

	ct, err := db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("conditional update %s/%s: %w", collection, id, err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx, `
            SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)
        `, collection, id).Scan(&exists); err != nil {
			return fmt.Errorf("conditional update existence check %s/%s: %w", collection, id, err)
		}
		if !exists {
			return apperr.ErrNotFound
		}
		return apperr.ErrConflict
	}
	return notifyChange(ctx, db, collection)
}

// Increment applies a server-side atomic delta to a numeric field, floored
// at zero, and returns the new value.
func (p *Postgres) Increment(ctx context.Context, collection, id, field string, delta int) (int, error) {
	return incrementDoc(ctx, p.pool, collection, id, field, delta)
}

func incrementDoc(ctx context.Context, db execer, collection, id, field string, delta int) (int, error) {
	var next int
	err := db.QueryRow(ctx, `
        UPDATE documents
        SET doc = jsonb_set(doc, ARRAY[$3],
                to_jsonb(GREATEST(0, COALESCE((doc->>$3)::int, 0) + $4))),
            updated_at = now()
        WHERE collection = $1 AND id = $2
        RETURNING (doc->>$3)::int
    `, collection, id, field, delta).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.ErrNotFound
		}
		return 0, fmt.Errorf("increment %s/%s.%s: %w", collection, id, field, err)
	}
	if err := notifyChange(ctx, db, collection); err != nil {
		return next, err
	}
	return next, nil
}

// WithTx opens a transaction and executes fn within it. pg_notify calls made
// inside the transaction are delivered only on commit, so subscribers never
// observe half-applied transitions.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if pan := recover(); pan != nil {
			err = tx.Rollback(ctx)
			if err != nil {
				panic(err)
			}
			panic(pan)
		}
	}()

	wrapped := &pgTx{tx: tx}
	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (Record, error) {
	return getDoc(ctx, t.tx, collection, id)
}

func (t *pgTx) Insert(ctx context.Context, collection, id string, doc Record) error {
	return insertDoc(ctx, t.tx, collection, id, doc)
}

func (t *pgTx) Update(ctx context.Context, collection, id string, changes Record) error {
	return updateDoc(ctx, t.tx, collection, id, changes)
}

func (t *pgTx) ConditionalUpdate(ctx context.Context, collection, id string, guard Predicate, changes Record) error {
	return conditionalUpdateDoc(ctx, t.tx, collection, id, guard, changes)
}

func (t *pgTx) Increment(ctx context.Context, collection, id, field string, delta int) (int, error) {
	return incrementDoc(ctx, t.tx, collection, id, field, delta)
}

// Subscribe listens for change notifications and re-queries on each signal,
// with a periodic re-query as a fallback. The channel closes on ctx
// cancellation.
func (p *Postgres) Subscribe(ctx context.Context, collection string, pred Predicate) (<-chan []Record, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire subscription conn: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	out := make(chan []Record, 1)
	if snap, err := p.Query(ctx, collection, pred); err == nil {
		out <- snap
	}

	go func() {
		defer close(out)
		defer conn.Release()

		for {
			waitCtx, cancel := context.WithTimeout(ctx, p.pollInterval)
			n, err := conn.Conn().WaitForNotification(waitCtx)
			cancel()

			if ctx.Err() != nil {
				return
			}
			if err == nil && n != nil && n.Payload != collection {
				continue
			}
			// Either a relevant notification arrived or the poll interval
			// elapsed; re-query in both cases.
			snap, qErr := p.Query(ctx, collection, pred)
			if qErr != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				default:
				}
			}
		}
	}()

	return out, nil
}

func notifyChange(ctx context.Context, db execer, collection string) error {
	if _, err := db.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		return fmt.Errorf("notify %s: %w", collection, err)
	}
	return nil
}

func decodeDoc(raw []byte, id string) (Record, error) {
	var doc Record
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode doc %s: %w", id, err)
	}
	doc["id"] = id
	return doc, nil
}

// isDuplicate - signals that the error is a duplicate key violation.
func isDuplicate(err error) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == "23505"
}
