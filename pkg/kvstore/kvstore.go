// Package kvstore provides the key-value store the entity collections are
// persisted in. The store offers single-key reads and writes, single-key
// conditional create and swap, and full collection scans. It has no
// multi-key transactions and no secondary indexes.
//
// Backends:
//   - RedisStore: go-redis client with circuit breaker and atomic stats
//   - PostgresStore: one kv_records table keyed by (collection, key)
//   - MemoryStore: map-backed, for tests and local development
//
// Example usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store, err := kvstore.NewRedisStore(kvstore.RedisConfig{Client: client, Prefix: "prov"})
//	if err != nil { ... }
//	defer store.Close()
//
//	created, err := store.PutIfAbsent(ctx, "clusters", id, data)
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotFound          = errors.New("kvstore: key not found")
	ErrUnavailable       = errors.New("kvstore: store unavailable")
	ErrInvalidKey        = errors.New("kvstore: key cannot be empty")
	ErrInvalidCollection = errors.New("kvstore: collection cannot be empty")
)

// ScanFunc is called once per record during Scan. Returning an error stops
// the scan and is returned from Scan.
type ScanFunc func(key string, value []byte) error

// Store defines the key-value operations every backend provides
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	// PutIfAbsent writes value only if key does not exist yet and reports
	// whether the write happened.
	PutIfAbsent(ctx context.Context, collection, key string, value []byte) (bool, error)
	// CompareAndSwap replaces the value of key only if it currently equals
	// old and reports whether the swap happened. A missing key never swaps.
	CompareAndSwap(ctx context.Context, collection, key string, old, value []byte) (bool, error)
	Delete(ctx context.Context, collection, key string) error
	// Scan visits every record of a collection. Order is unspecified.
	Scan(ctx context.Context, collection string, fn ScanFunc) error

	Ping(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Stats provides store metrics
type Stats struct {
	Reads        uint64
	Misses       uint64
	Writes       uint64
	Conditional  uint64
	Deletes      uint64
	Scans        uint64
	Errors       uint64
	AvgLatencyMs float64
	CircuitOpen  bool
}

func validateKey(collection, key string) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > 512 {
		return fmt.Errorf("kvstore: key too long: max 512 characters, got %d", len(key))
	}
	return nil
}

// storeMetrics tracks store performance
type storeMetrics struct {
	reads        uint64
	misses       uint64
	writes       uint64
	conditional  uint64
	deletes      uint64
	scans        uint64
	errors       uint64
	totalLatency uint64 // microseconds
	operations   uint64
}

// observe records latency for one operation; use with defer.
func (m *storeMetrics) observe(start time.Time) {
	atomic.AddUint64(&m.operations, 1)
	atomic.AddUint64(&m.totalLatency, uint64(time.Since(start).Microseconds()))
}

func (m *storeMetrics) snapshot(circuitOpen bool) Stats {
	ops := atomic.LoadUint64(&m.operations)
	var avgLatency float64
	if ops > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.totalLatency)) / float64(ops) / 1000
	}

	return Stats{
		Reads:        atomic.LoadUint64(&m.reads),
		Misses:       atomic.LoadUint64(&m.misses),
		Writes:       atomic.LoadUint64(&m.writes),
		Conditional:  atomic.LoadUint64(&m.conditional),
		Deletes:      atomic.LoadUint64(&m.deletes),
		Scans:        atomic.LoadUint64(&m.scans),
		Errors:       atomic.LoadUint64(&m.errors),
		AvgLatencyMs: avgLatency,
		CircuitOpen:  circuitOpen,
	}
}

// CircuitBreaker stops calling a failing backend for resetTimeout after
// maxFailures consecutive failures.
type CircuitBreaker struct {
	maxFailures  uint32
	resetTimeout time.Duration
	failures     uint32
	lastFailTime time.Time
	state        uint32 // 0=closed, 1=open, 2=half-open
	mu           sync.RWMutex
}

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures uint32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        circuitClosed,
	}
}

// Call executes fn with circuit breaker protection. Errors for which
// isFailure returns false (such as a missing key) do not count as failures.
func (cb *CircuitBreaker) Call(fn func() error, isFailure func(error) bool) error {
	if !cb.canExecute() {
		return ErrUnavailable
	}

	err := fn()
	if err != nil && isFailure(err) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) canExecute() bool {
	switch atomic.LoadUint32(&cb.state) {
	case circuitClosed, circuitHalfOpen:
		return true
	case circuitOpen:
		cb.mu.RLock()
		elapsed := time.Since(cb.lastFailTime)
		cb.mu.RUnlock()

		if elapsed > cb.resetTimeout {
			atomic.StoreUint32(&cb.state, circuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()

	if cb.failures >= cb.maxFailures {
		atomic.StoreUint32(&cb.state, circuitOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if atomic.LoadUint32(&cb.state) == circuitHalfOpen {
		atomic.StoreUint32(&cb.state, circuitClosed)
	}
}

// IsOpen reports whether calls are currently being rejected
func (cb *CircuitBreaker) IsOpen() bool {
	return atomic.LoadUint32(&cb.state) == circuitOpen
}
