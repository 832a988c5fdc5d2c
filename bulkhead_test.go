package paybridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/model"
)

func TestBulkheadRejectsWhenSaturated(t *testing.T) {
	bh := newBulkhead(model.BulkheadConfig{
		MaxConcurrentCalls: 2,
		MaxQueuedCalls:     0,
		QueueWaitTimeoutMs: 100,
	})
	ctx := context.Background()

	assert.NoError(t, bh.Acquire(ctx))
	assert.NoError(t, bh.Acquire(ctx))
	assert.Equal(t, 2, bh.InFlight())

	// No waiting room configured: the third admission fails immediately.
	err := bh.Acquire(ctx)
	assert.ErrorIs(t, err, ErrBulkheadFull)

	bh.Release()
	assert.NoError(t, bh.Acquire(ctx))
}

func TestBulkheadQueuedCallerGetsFreedSlot(t *testing.T) {
	bh := newBulkhead(model.BulkheadConfig{
		MaxConcurrentCalls: 1,
		MaxQueuedCalls:     1,
		QueueWaitTimeoutMs: 2000,
	})
	ctx := context.Background()

	assert.NoError(t, bh.Acquire(ctx))

	acquired := make(chan error, 1)
	go func() {
		acquired <- bh.Acquire(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	bh.Release()

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued caller never got the freed slot")
	}
}

func TestBulkheadQueueWaitTimesOut(t *testing.T) {
	bh := newBulkhead(model.BulkheadConfig{
		MaxConcurrentCalls: 1,
		MaxQueuedCalls:     1,
		QueueWaitTimeoutMs: 50,
	})
	ctx := context.Background()

	assert.NoError(t, bh.Acquire(ctx))

	start := time.Now()
	err := bh.Acquire(ctx)
	assert.ErrorIs(t, err, ErrBulkheadFull)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBulkheadWaitingRoomBound(t *testing.T) {
	bh := newBulkhead(model.BulkheadConfig{
		MaxConcurrentCalls: 1,
		MaxQueuedCalls:     1,
		QueueWaitTimeoutMs: 500,
	})
	ctx := context.Background()

	assert.NoError(t, bh.Acquire(ctx))

	waiting := make(chan error, 1)
	go func() {
		waiting <- bh.Acquire(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	// The waiting room holds one; the next admission is turned away at once.
	err := bh.Acquire(ctx)
	assert.ErrorIs(t, err, ErrBulkheadFull)

	bh.Release()
	assert.NoError(t, <-waiting)
}

func TestBulkheadRegistryNilConfig(t *testing.T) {
	registry := NewBulkheadRegistry()
	assert.Nil(t, registry.Get("fraud-check", "tn_1", nil))

	cfg := &model.BulkheadConfig{MaxConcurrentCalls: 3, QueueWaitTimeoutMs: 100}
	bh := registry.Get("fraud-check", "tn_1", cfg)
	assert.NotNil(t, bh)
	assert.Equal(t, 3, bh.capacity())

	// Resizing replaces the pool.
	cfg2 := &model.BulkheadConfig{MaxConcurrentCalls: 5, QueueWaitTimeoutMs: 100}
	bh2 := registry.Get("fraud-check", "tn_1", cfg2)
	assert.Equal(t, 5, bh2.capacity())
}
