package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nesavent/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a client backed by miniredis.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, 10*time.Second, logger.NewTestLogger(nil)), mr
}

func TestPurchaseLock_ExclusivePerBuyerAndEvent(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.AcquirePurchaseLock(ctx, "event-1", "buyer-1", "req-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.AcquirePurchaseLock(ctx, "event-1", "buyer-1", "req-b")
	require.NoError(t, err)
	assert.False(t, ok, "same buyer and event must be serialised")

	ok, err = r.AcquirePurchaseLock(ctx, "event-1", "buyer-2", "req-c")
	require.NoError(t, err)
	assert.True(t, ok, "other buyers are independent")

	ok, err = r.AcquirePurchaseLock(ctx, "event-2", "buyer-1", "req-d")
	require.NoError(t, err)
	assert.True(t, ok, "other events are independent")
}

func TestPurchaseLock_ReleaseOnlyByOwner(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.AcquirePurchaseLock(ctx, "e", "b", "owner")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.ReleasePurchaseLock(ctx, "e", "b", "intruder"))
	assert.True(t, mr.Exists(purchaseLockKey("e", "b")))

	require.NoError(t, r.ReleasePurchaseLock(ctx, "e", "b", "owner"))
	assert.False(t, mr.Exists(purchaseLockKey("e", "b")))
}

func TestPurchaseLock_ExpiresAfterTTL(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.AcquirePurchaseLock(ctx, "e", "b", "first")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = r.AcquirePurchaseLock(ctx, "e", "b", "second")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPurchaseLock_RaceConditionPrevention(t *testing.T) {
	r, _ := setupTestRedis(t)

	const numGoroutines = 20
	var wg sync.WaitGroup
	var acquired int32

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := r.AcquirePurchaseLock(context.Background(), "event", "buyer", fmt.Sprintf("req-%d", n))
			if err == nil && ok {
				atomic.AddInt32(&acquired, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired, "exactly one concurrent request may hold the lock")
}

func TestHold_SetClearAndTTL(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetHold(ctx, "order-1", time.Hour))
	assert.True(t, mr.Exists("order_hold:order-1"))
	assert.Equal(t, time.Hour, mr.TTL("order_hold:order-1"))

	require.NoError(t, r.ClearHold(ctx, "order-1"))
	assert.False(t, mr.Exists("order_hold:order-1"))
}

func TestHoldOrderID(t *testing.T) {
	id, ok := HoldOrderID("order_hold:abc-123")
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = HoldOrderID("purchase_lock:e:b")
	assert.False(t, ok)

	_, ok = HoldOrderID("order_hold:")
	assert.False(t, ok)
}
