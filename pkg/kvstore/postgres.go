package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/victoralfred/kube_provisioner/pkg/database"
)

// PostgresStore keeps every collection in the kv_records table created by
// the embedded migrations. Only the (collection, key) primary key is used;
// no other index or constraint is relied on.
type PostgresStore struct {
	db      *database.DB
	metrics *storeMetrics
}

// NewPostgresStore creates a store over an open database
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		metrics: &storeMetrics{},
	}
}

// Get retrieves a value
func (s *PostgresStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	defer s.metrics.observe(time.Now())
	atomic.AddUint64(&s.metrics.reads, 1)

	query := `SELECT value FROM kv_records WHERE collection = $1 AND key = $2`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, collection, key).Scan(&value)
	if err == sql.ErrNoRows {
		atomic.AddUint64(&s.metrics.misses, 1)
		return nil, ErrNotFound
	}
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return value, nil
}

// Put upserts a value
func (s *PostgresStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	defer s.metrics.observe(time.Now())

	query := `
		INSERT INTO kv_records (collection, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, collection, key, value, time.Now().UTC()); err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("failed to put record: %w", err)
	}

	atomic.AddUint64(&s.metrics.writes, 1)
	return nil
}

// PutIfAbsent inserts only when the primary key is free
func (s *PostgresStore) PutIfAbsent(ctx context.Context, collection, key string, value []byte) (bool, error) {
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	defer s.metrics.observe(time.Now())
	atomic.AddUint64(&s.metrics.conditional, 1)

	query := `
		INSERT INTO kv_records (collection, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, collection, key, value, time.Now().UTC())
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("failed to insert record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}
	atomic.AddUint64(&s.metrics.writes, 1)
	return true, nil
}

// CompareAndSwap updates the row only when its value still equals old
func (s *PostgresStore) CompareAndSwap(ctx context.Context, collection, key string, old, value []byte) (bool, error) {
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	defer s.metrics.observe(time.Now())
	atomic.AddUint64(&s.metrics.conditional, 1)

	query := `
		UPDATE kv_records SET value = $4, updated_at = $5
		WHERE collection = $1 AND key = $2 AND value = $3
	`

	result, err := s.db.ExecContext(ctx, query, collection, key, old, value, time.Now().UTC())
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("failed to swap record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}
	atomic.AddUint64(&s.metrics.writes, 1)
	return true, nil
}

// Delete removes a record
func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	defer s.metrics.observe(time.Now())

	query := `DELETE FROM kv_records WHERE collection = $1 AND key = $2`
	if _, err := s.db.ExecContext(ctx, query, collection, key); err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("failed to delete record: %w", err)
	}

	atomic.AddUint64(&s.metrics.deletes, 1)
	return nil
}

// Scan reads the whole collection ordered by key. Rows are buffered before
// fn runs so fn may issue its own queries without holding a connection.
func (s *PostgresStore) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	defer s.metrics.observe(time.Now())
	atomic.AddUint64(&s.metrics.scans, 1)

	query := `SELECT key, value FROM kv_records WHERE collection = $1 ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("failed to scan collection: %w", err)
	}

	type row struct {
		key   string
		value []byte
	}
	var buffered []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			atomic.AddUint64(&s.metrics.errors, 1)
			return fmt.Errorf("failed to read record: %w", err)
		}
		buffered = append(buffered, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("failed to iterate collection: %w", err)
	}
	rows.Close()

	for _, r := range buffered {
		if err := fn(r.key, r.value); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks database health
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Stats returns store statistics
func (s *PostgresStore) Stats() Stats {
	return s.metrics.snapshot(false)
}

// Close closes the database
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
