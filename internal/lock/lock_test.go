package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockAndUnlock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l := NewLocker(client, "scheduler:scan", "holder-1")
	assert.NoError(t, l.Lock(ctx, time.Minute))

	// A second holder cannot take the lock while it is held.
	other := NewLocker(client, "scheduler:scan", "holder-2")
	assert.Error(t, other.Lock(ctx, time.Minute))

	// Only the holder can unlock.
	assert.Error(t, other.Unlock(ctx))
	assert.NoError(t, l.Unlock(ctx))

	assert.NoError(t, other.Lock(ctx, time.Minute))
}

func TestExtendLock(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l := NewLocker(client, "scheduler:scan", "holder-1")
	assert.NoError(t, l.Lock(ctx, time.Second))
	assert.NoError(t, l.ExtendLock(ctx, time.Minute))

	stranger := NewLocker(client, "scheduler:scan", "stranger")
	assert.Error(t, stranger.ExtendLock(ctx, time.Minute))
}
