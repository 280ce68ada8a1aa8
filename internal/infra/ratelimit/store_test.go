package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_AlwaysReturnsStorage(t *testing.T) {
	if s := NewStore(RedisConfig{}); s == nil {
		t.Fatalf("expected non-nil memory store when redis addr empty")
	}

	if s := NewStore(RedisConfig{Addr: "127.0.0.1:1", DB: 0}); s == nil {
		t.Fatalf("expected non-nil store even with unreachable redis")
	}
}

func TestNewStore_WritesThroughToRedis(t *testing.T) {
	mrs, err := miniredis.Run()
	require.NoError(t, err)
	defer mrs.Close()

	store := NewStore(RedisConfig{Addr: mrs.Addr()})
	require.NoError(t, store.Set("limiter:client", []byte("3"), time.Minute))

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	defer rdb.Close()

	got, err := rdb.Get(context.Background(), "limiter:client").Result()
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	ttl := mrs.TTL("limiter:client")
	assert.True(t, ttl > 50*time.Second && ttl <= time.Minute, "unexpected ttl %v", ttl)

	val, err := store.Get("limiter:client")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}

func TestNewStore_MemoryRoundTrip(t *testing.T) {
	store := NewStore(RedisConfig{})
	require.NoError(t, store.Set("k", []byte("v"), time.Minute))

	val, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, store.Delete("k"))
	val, err = store.Get("k")
	require.NoError(t, err)
	assert.Nil(t, val)
}
