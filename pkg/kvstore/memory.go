package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development. Values
// are copied on the way in and out so callers never share backing arrays.
type MemoryStore struct {
	data    map[string]map[string][]byte
	mu      sync.RWMutex
	metrics *storeMetrics
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]map[string][]byte),
		metrics: &storeMetrics{},
	}
}

// Get returns a copy of the stored value
func (s *MemoryStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	defer s.metrics.observe(time.Now())
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	value, ok := s.data[collection][key]
	s.mu.RUnlock()

	atomic.AddUint64(&s.metrics.reads, 1)
	if !ok {
		atomic.AddUint64(&s.metrics.misses, 1)
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

// Put stores value unconditionally
func (s *MemoryStore) Put(ctx context.Context, collection, key string, value []byte) error {
	defer s.metrics.observe(time.Now())
	if err := validateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.bucket(collection)[key] = cloneBytes(value)
	s.mu.Unlock()

	atomic.AddUint64(&s.metrics.writes, 1)
	return nil
}

// PutIfAbsent stores value only when key is not present
func (s *MemoryStore) PutIfAbsent(ctx context.Context, collection, key string, value []byte) (bool, error) {
	defer s.metrics.observe(time.Now())
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	atomic.AddUint64(&s.metrics.conditional, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.bucket(collection)
	if _, exists := bucket[key]; exists {
		return false, nil
	}
	bucket[key] = cloneBytes(value)
	atomic.AddUint64(&s.metrics.writes, 1)
	return true, nil
}

// CompareAndSwap stores value when the current value equals old
func (s *MemoryStore) CompareAndSwap(ctx context.Context, collection, key string, old, value []byte) (bool, error) {
	defer s.metrics.observe(time.Now())
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	atomic.AddUint64(&s.metrics.conditional, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[collection][key]
	if !exists || !bytes.Equal(current, old) {
		return false, nil
	}
	s.data[collection][key] = cloneBytes(value)
	atomic.AddUint64(&s.metrics.writes, 1)
	return true, nil
}

// Delete removes key; deleting a missing key is not an error
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	defer s.metrics.observe(time.Now())
	if err := validateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data[collection], key)
	s.mu.Unlock()

	atomic.AddUint64(&s.metrics.deletes, 1)
	return nil
}

// Scan visits every record of collection in key order. The lock is not held
// while fn runs, so fn may write to the store.
func (s *MemoryStore) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	defer s.metrics.observe(time.Now())
	if collection == "" {
		return ErrInvalidCollection
	}

	s.mu.RLock()
	bucket := s.data[collection]
	keys := make([]string, 0, len(bucket))
	values := make(map[string][]byte, len(bucket))
	for k, v := range bucket {
		keys = append(keys, k)
		values[k] = cloneBytes(v)
	}
	s.mu.RUnlock()

	atomic.AddUint64(&s.metrics.scans, 1)
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Ping always returns nil for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Stats returns store statistics
func (s *MemoryStore) Stats() Stats {
	return s.metrics.snapshot(false)
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// bucket must be called with mu held for writing
func (s *MemoryStore) bucket(collection string) map[string][]byte {
	b, ok := s.data[collection]
	if !ok {
		b = make(map[string][]byte)
		s.data[collection] = b
	}
	return b
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
