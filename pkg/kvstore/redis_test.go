package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewRedisStore(RedisConfig{
		Client:    client,
		Prefix:    "test",
		ScanCount: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNewRedisStore_RequiresClient(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{})
	assert.Error(t, err)
}

func TestRedisStore_PutAndGet(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "clusters", "c1", []byte("payload")))

	raw, err := mr.Get("test:clusters:c1")
	require.NoError(t, err)
	assert.Equal(t, "payload", raw)

	value, err := store.Get(ctx, "clusters", "c1")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(value))
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "clusters", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	stats := store.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(0), stats.Errors)
	assert.False(t, stats.CircuitOpen)
}

func TestRedisStore_PutIfAbsent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	created, err := store.PutIfAbsent(ctx, "reservations", "tenant_url:acme", []byte("s1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.PutIfAbsent(ctx, "reservations", "tenant_url:acme", []byte("s2"))
	require.NoError(t, err)
	assert.False(t, created)

	value, err := store.Get(ctx, "reservations", "tenant_url:acme")
	require.NoError(t, err)
	assert.Equal(t, "s1", string(value))
}

func TestRedisStore_CompareAndSwap(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	swapped, err := store.CompareAndSwap(ctx, "reservations", "tenant_url:acme", []byte("s1"), []byte("s2"))
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.False(t, mr.Exists("test:reservations:tenant_url:acme"))

	require.NoError(t, store.Put(ctx, "reservations", "tenant_url:acme", []byte("s1")))

	swapped, err = store.CompareAndSwap(ctx, "reservations", "tenant_url:acme", []byte("nope"), []byte("s2"))
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = store.CompareAndSwap(ctx, "reservations", "tenant_url:acme", []byte("s1"), []byte("s2"))
	require.NoError(t, err)
	assert.True(t, swapped)

	raw, err := mr.Get("test:reservations:tenant_url:acme")
	require.NoError(t, err)
	assert.Equal(t, "s2", raw)
	assert.Equal(t, uint64(0), store.Stats().Errors)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c", "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "c", "k"))
	assert.False(t, mr.Exists("test:c:k"))
}

func TestRedisStore_ScanAcrossBatches(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for _, k := range []string{"s3", "s1", "s5", "s2", "s4"} {
		require.NoError(t, store.Put(ctx, "subscriptions", k, []byte("v-"+k)))
	}
	require.NoError(t, store.Put(ctx, "subscriptions_other", "x", []byte("x")))
	require.NoError(t, store.Put(ctx, "tenants", "t1", []byte("t")))

	got := map[string]string{}
	err := store.Scan(ctx, "subscriptions", func(key string, value []byte) error {
		got[key] = string(value)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"s1": "v-s1",
		"s2": "v-s2",
		"s3": "v-s3",
		"s4": "v-s4",
		"s5": "v-s5",
	}, got)
}

func TestRedisStore_ScanEmptyCollection(t *testing.T) {
	store, _ := newTestRedisStore(t)

	visited := 0
	err := store.Scan(context.Background(), "empty", func(string, []byte) error {
		visited++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, visited)
}

func TestRedisStore_Ping(t *testing.T) {
	store, _ := newTestRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
