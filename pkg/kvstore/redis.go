package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// compareAndSwapScript sets KEYS[1] to ARGV[2] when it holds ARGV[1]
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// RedisConfig holds Redis store configuration
type RedisConfig struct {
	Client       *redis.Client
	Prefix       string // namespace for every key, e.g. "provisioner"
	ScanCount    int64  // SCAN batch size hint
	MaxFailures  uint32
	ResetTimeout time.Duration
}

// RedisStore keeps each record under "prefix:collection:key"
type RedisStore struct {
	client         *redis.Client
	prefix         string
	scanCount      int64
	circuitBreaker *CircuitBreaker
	metrics        *storeMetrics
}

// NewRedisStore creates a Redis-backed store and verifies the connection
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if config.Prefix == "" {
		config.Prefix = "provisioner"
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 30 * time.Second
	}

	return &RedisStore{
		client:         config.Client,
		prefix:         config.Prefix,
		scanCount:      config.ScanCount,
		circuitBreaker: NewCircuitBreaker(config.MaxFailures, config.ResetTimeout),
		metrics:        &storeMetrics{},
	}, nil
}

func (s *RedisStore) key(collection, key string) string {
	return s.prefix + ":" + collection + ":" + key
}

func (s *RedisStore) collectionPrefix(collection string) string {
	return s.prefix + ":" + collection + ":"
}

// isBackendFailure excludes the not-found reply from circuit breaker accounting
func isBackendFailure(err error) bool {
	return err != redis.Nil
}

// Get retrieves a value
func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	defer s.metrics.observe(time.Now())

	var val []byte
	err := s.circuitBreaker.Call(func() error {
		var err error
		val, err = s.client.Get(ctx, s.key(collection, key)).Bytes()
		return err
	}, isBackendFailure)

	atomic.AddUint64(&s.metrics.reads, 1)
	if err == redis.Nil {
		atomic.AddUint64(&s.metrics.misses, 1)
		return nil, ErrNotFound
	}
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// Put stores a value without expiry
func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	defer s.metrics.observe(time.Now())

	err := s.circuitBreaker.Call(func() error {
		return s.client.Set(ctx, s.key(collection, key), value, 0).Err()
	}, isBackendFailure)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("redis set failed: %w", err)
	}

	atomic.AddUint64(&s.metrics.writes, 1)
	return nil
}

// PutIfAbsent maps to SETNX
func (s *RedisStore) PutIfAbsent(ctx context.Context, collection, key string, value []byte) (bool, error) {
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	defer s.metrics.observe(time.Now())

	var created bool
	err := s.circuitBreaker.Call(func() error {
		var err error
		created, err = s.client.SetNX(ctx, s.key(collection, key), value, 0).Result()
		return err
	}, isBackendFailure)

	atomic.AddUint64(&s.metrics.conditional, 1)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if created {
		atomic.AddUint64(&s.metrics.writes, 1)
	}
	return created, nil
}

// CompareAndSwap runs a GET and SET as one Lua script
func (s *RedisStore) CompareAndSwap(ctx context.Context, collection, key string, old, value []byte) (bool, error) {
	if err := validateKey(collection, key); err != nil {
		return false, err
	}
	defer s.metrics.observe(time.Now())

	var swapped int
	err := s.circuitBreaker.Call(func() error {
		var err error
		swapped, err = compareAndSwapScript.Run(ctx, s.client, []string{s.key(collection, key)}, old, value).Int()
		return err
	}, isBackendFailure)

	atomic.AddUint64(&s.metrics.conditional, 1)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return false, fmt.Errorf("redis compare-and-swap failed: %w", err)
	}
	if swapped == 0 {
		return false, nil
	}
	atomic.AddUint64(&s.metrics.writes, 1)
	return true, nil
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	defer s.metrics.observe(time.Now())

	err := s.circuitBreaker.Call(func() error {
		return s.client.Del(ctx, s.key(collection, key)).Err()
	}, isBackendFailure)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("redis delete failed: %w", err)
	}

	atomic.AddUint64(&s.metrics.deletes, 1)
	return nil
}

// Scan walks the collection with SCAN MATCH and fetches values with MGET.
// Keys deleted between the two calls are skipped.
func (s *RedisStore) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	defer s.metrics.observe(time.Now())
	atomic.AddUint64(&s.metrics.scans, 1)

	prefix := s.collectionPrefix(collection)
	var keys []string

	err := s.circuitBreaker.Call(func() error {
		var cursor uint64
		for {
			batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", s.scanCount).Result()
			if err != nil {
				return err
			}
			keys = append(keys, batch...)
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	}, isBackendFailure)
	if err != nil {
		atomic.AddUint64(&s.metrics.errors, 1)
		return fmt.Errorf("redis scan failed: %w", err)
	}

	// SCAN may return a key more than once
	sort.Strings(keys)
	keys = dedupe(keys)

	for start := 0; start < len(keys); start += int(s.scanCount) {
		end := start + int(s.scanCount)
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		var vals []interface{}
		err := s.circuitBreaker.Call(func() error {
			var err error
			vals, err = s.client.MGet(ctx, batch...).Result()
			return err
		}, isBackendFailure)
		if err != nil {
			atomic.AddUint64(&s.metrics.errors, 1)
			return fmt.Errorf("redis mget failed: %w", err)
		}

		for i, val := range vals {
			str, ok := val.(string)
			if !ok {
				continue
			}
			if err := fn(strings.TrimPrefix(batch[i], prefix), []byte(str)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats returns store statistics
func (s *RedisStore) Stats() Stats {
	return s.metrics.snapshot(s.circuitBreaker.IsOpen())
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func dedupe(sorted []string) []string {
	out := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if len(out) == 0 || out[len(out)-1] != k {
			out = append(out, k)
		}
	}
	return out
}
