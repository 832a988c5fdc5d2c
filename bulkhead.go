/*
Copyright 2024 PayBridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package paybridge

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/paybridge/paybridge/model"
)

// ErrBulkheadFull is returned when every concurrency slot is taken and the
// admission either cannot wait or waited past its bound.
var ErrBulkheadFull = errors.New("bulkhead capacity exhausted")

// BulkheadRegistry holds one bulkhead per (service, tenant) pair so a slow
// downstream exhausts only its own slots, never the process.
type BulkheadRegistry struct {
	mu        sync.Mutex
	bulkheads map[string]*Bulkhead
}

func NewBulkheadRegistry() *BulkheadRegistry {
	return &BulkheadRegistry{bulkheads: make(map[string]*Bulkhead)}
}

// Get returns the bulkhead for the pair, creating or resizing it to match the
// config. A nil config returns nil; callers treat that as unlimited.
func (r *BulkheadRegistry) Get(serviceName, tenantID string, cfg *model.BulkheadConfig) *Bulkhead {
	if cfg == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := breakerKey(serviceName, tenantID)
	bh, ok := r.bulkheads[key]
	if !ok || bh.capacity() != cfg.MaxConcurrentCalls {
		bh = newBulkhead(*cfg)
		r.bulkheads[key] = bh
		return bh
	}
	bh.mu.Lock()
	bh.cfg = *cfg
	bh.mu.Unlock()
	return bh
}

// Bulkhead bounds concurrent in-flight calls with a buffered channel as the
// slot pool, plus a counted waiting room for admissions allowed to queue.
type Bulkhead struct {
	slots chan struct{}

	mu      sync.Mutex
	cfg     model.BulkheadConfig
	waiting int
}

func newBulkhead(cfg model.BulkheadConfig) *Bulkhead {
	return &Bulkhead{
		slots: make(chan struct{}, cfg.MaxConcurrentCalls),
		cfg:   cfg,
	}
}

func (b *Bulkhead) capacity() int {
	return cap(b.slots)
}

// Acquire takes a slot or returns ErrBulkheadFull. When slots are exhausted it
// joins the waiting room if there is space, bounded by the queue wait timeout
// and the caller's context.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	b.mu.Lock()
	if b.waiting >= b.cfg.MaxQueuedCalls {
		b.mu.Unlock()
		return ErrBulkheadFull
	}
	b.waiting++
	wait := time.Duration(b.cfg.QueueWaitTimeoutMs) * time.Millisecond
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting--
		b.mu.Unlock()
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBulkheadFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (b *Bulkhead) Release() {
	select {
	case <-b.slots:
	default:
		// Release without a matching Acquire; nothing to free.
	}
}

// InFlight reports the number of occupied slots.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}
