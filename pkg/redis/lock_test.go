package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockMutualExclusion(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	l1 := NewLock(rdb, "lock:test")
	ok, err := l1.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// 第二把锁拿不到，返回 false 而不是错误
	l2 := NewLock(rdb, "lock:test")
	ok, err = l2.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l1.Unlock(ctx))

	ok, err = l2.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lock acquirable after release")
}

func TestLockStaleHolderCannotRelease(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	l1 := NewLock(rdb, "lock:test")
	ok, err := l1.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// 模拟 l1 的租约过期后被 l2 接手
	require.NoError(t, rdb.Del(ctx, "lock:test").Err())
	l2 := NewLock(rdb, "lock:test")
	ok, err = l2.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// 过期的持有者释放必须是空操作，不能误删 l2 的锁
	require.NoError(t, l1.Unlock(ctx))
	val, err := rdb.Get(ctx, "lock:test").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, val, "lock still held by the new owner")

	l3 := NewLock(rdb, "lock:test")
	ok, err = l3.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockTTLSet(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	l := NewLock(rdb, "lock:ttl")
	ok, err := l.TryLock(ctx, 7*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ttl, err := rdb.TTL(ctx, "lock:ttl").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "lease must auto-expire on holder crash")
	assert.LessOrEqual(t, ttl, 7*time.Second)
}
