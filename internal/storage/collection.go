package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Record is anything stored in a collection, keyed by its id.
type Record interface {
	Key() string
}

// Collection is an independently addressable set of records of one type.
// Operations on the same collection never interleave.
type Collection[T Record] struct {
	store *Store
	name  string
	mu    sync.Mutex
}

func newCollection[T Record](store *Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

func (c *Collection[T]) Name() string { return c.name }

// All returns every record in no particular order. An uninitialized store
// yields an empty list.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	db := c.store.handle()
	if db == nil {
		return []T{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := db.QueryContext(ctx, "SELECT data FROM "+c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	defer rows.Close()

	records := make([]T, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", c.name, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.name, err)
	}
	return records, nil
}

// Get looks up one record by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	db := c.store.handle()
	if db == nil {
		return zero, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var data string
	err := db.QueryRowContext(ctx, "SELECT data FROM "+c.name+" WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("get %s %q: %w", c.name, id, err)
	}
	var rec T
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return zero, false, fmt.Errorf("decode %s record: %w", c.name, err)
	}
	return rec, true, nil
}

// Count returns the number of records in the collection.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	db := c.store.handle()
	if db == nil {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// Add inserts a new record and fails with ErrDuplicateKey if the id exists.
func (c *Collection[T]) Add(ctx context.Context, rec T) error {
	db := c.store.handle()
	if db == nil {
		return ErrNotInitialized
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := db.ExecContext(ctx,
		"INSERT INTO "+c.name+" (id, data) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
		rec.Key(), string(data))
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %q", ErrDuplicateKey, c.name, rec.Key())
	}

	slog.DebugContext(ctx, "Record added", "collection", c.name, "id", rec.Key())
	return nil
}

// Put replaces the record with the same id, inserting it when absent.
func (c *Collection[T]) Put(ctx context.Context, rec T) error {
	db := c.store.handle()
	if db == nil {
		return ErrNotInitialized
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = db.ExecContext(ctx,
		"INSERT INTO "+c.name+" (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data",
		rec.Key(), string(data))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", c.name, err)
	}

	slog.DebugContext(ctx, "Record stored", "collection", c.name, "id", rec.Key())
	return nil
}

// Delete removes the record with id. A missing id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	db := c.store.handle()
	if db == nil {
		return ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := db.ExecContext(ctx, "DELETE FROM "+c.name+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete %s %q: %w", c.name, id, err)
	}

	slog.DebugContext(ctx, "Record deleted", "collection", c.name, "id", id)
	return nil
}
