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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/model"
)

// BreakerRegistry holds one circuit breaker per (service, tenant) pair.
// Breakers are created lazily on first use and reconfigured in place when the
// stored policy changes.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	now      func() time.Time
}

func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		now:      time.Now,
	}
}

func breakerKey(serviceName, tenantID string) string {
	return serviceName + ":" + tenantID
}

// Get returns the breaker for the pair, creating it when absent. A nil config
// returns nil: the caller treats a nil breaker as disabled.
func (r *BreakerRegistry) Get(serviceName, tenantID string, cfg *model.CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := breakerKey(serviceName, tenantID)
	cb, ok := r.breakers[key]
	if !ok {
		cb = newCircuitBreaker(serviceName, tenantID, *cfg, r.now)
		r.breakers[key] = cb
		return cb
	}
	cb.reconfigure(*cfg)
	return cb
}

// Lookup returns the breaker for the pair without creating one.
func (r *BreakerRegistry) Lookup(serviceName, tenantID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[breakerKey(serviceName, tenantID)]
}

// Snapshots reports the state of every breaker the registry has seen.
func (r *BreakerRegistry) Snapshots() []model.BreakerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]model.BreakerSnapshot, 0, len(r.breakers))
	for _, cb := range r.breakers {
		snapshots = append(snapshots, cb.Snapshot())
	}
	return snapshots
}

// CircuitBreaker guards one downstream (service, tenant) pair. Outcomes feed a
// count-based sliding window; the breaker opens when the failure rate over a
// full-enough window reaches the configured threshold.
type CircuitBreaker struct {
	serviceName string
	tenantID    string

	mu     sync.Mutex
	cfg    model.CircuitBreakerConfig
	state  model.CircuitState
	window []bool // true marks a failure
	head   int
	filled int

	openedAt       time.Time
	trialInFlight  int
	trialSuccesses int

	now func() time.Time
}

func newCircuitBreaker(serviceName, tenantID string, cfg model.CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		serviceName: serviceName,
		tenantID:    tenantID,
		cfg:         cfg,
		state:       model.CircuitClosed,
		window:      make([]bool, cfg.SlidingWindowSize),
		now:         now,
	}
}

// reconfigure applies an updated policy. The window resets only when its size
// changed; state is preserved so a config tweak cannot silently close an open
// breaker.
func (cb *CircuitBreaker) reconfigure(cfg model.CircuitBreakerConfig) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cfg.SlidingWindowSize != cb.cfg.SlidingWindowSize {
		cb.window = make([]bool, cfg.SlidingWindowSize)
		cb.head = 0
		cb.filled = 0
	}
	cb.cfg = cfg
}

// Allow reports whether a call may proceed. In HALF_OPEN it hands out trial
// permits up to the configured budget; every other caller is rejected until
// the trials settle the state.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitClosed:
		return true
	case model.CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.OpenStateDuration() {
			cb.toHalfOpen()
			cb.trialInFlight++
			return true
		}
		return false
	case model.CircuitHalfOpen:
		if cb.trialInFlight+cb.trialSuccesses < cb.cfg.HalfOpenTrialCalls {
			cb.trialInFlight++
			return true
		}
		return false
	}
	return false
}

// Record feeds the outcome of one permitted call back into the breaker.
func (cb *CircuitBreaker) Record(outcome model.Outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitClosed:
		cb.push(outcome.Failure())
		if cb.shouldOpen() {
			cb.toOpen()
		}
	case model.CircuitHalfOpen:
		if cb.trialInFlight > 0 {
			cb.trialInFlight--
		}
		if outcome.Failure() {
			// One failed trial re-opens immediately.
			cb.toOpen()
			return
		}
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.cfg.HalfOpenTrialCalls {
			cb.toClosed()
		}
	case model.CircuitOpen:
		// A straggler from before the trip; the window is already moot.
	}
}

// ForceOpen trips the breaker by hand. The admin API uses it to fence a
// downstream known to be down before traffic discovers it.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toOpen()
}

// Reset returns the breaker to CLOSED with an empty window. The self-healing
// monitor calls it once a downstream has proven healthy again.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed()
}

// State returns the current state, honoring a pending OPEN to HALF_OPEN
// transition whose wait has elapsed.
func (cb *CircuitBreaker) State() model.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == model.CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenStateDuration() {
		return model.CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() model.BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snapshot := model.BreakerSnapshot{
		ServiceName:    cb.serviceName,
		TenantID:       cb.tenantID,
		State:          cb.state,
		WindowSize:     cb.filled,
		WindowFailures: cb.failures(),
	}
	if cb.state == model.CircuitOpen || cb.state == model.CircuitHalfOpen {
		openedAt := cb.openedAt
		snapshot.OpenedAt = &openedAt
	}
	return snapshot
}

func (cb *CircuitBreaker) push(failure bool) {
	if len(cb.window) == 0 {
		return
	}
	cb.window[cb.head] = failure
	cb.head = (cb.head + 1) % len(cb.window)
	if cb.filled < len(cb.window) {
		cb.filled++
	}
}

func (cb *CircuitBreaker) failures() int {
	n := 0
	for i := 0; i < cb.filled; i++ {
		if cb.window[i] {
			n++
		}
	}
	return n
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.filled < cb.cfg.MinimumCalls {
		return false
	}
	rate := float64(cb.failures()) / float64(cb.filled)
	return rate >= cb.cfg.FailureRateThreshold
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = model.CircuitOpen
	cb.openedAt = cb.now()
	cb.trialInFlight = 0
	cb.trialSuccesses = 0
	logrus.WithFields(logrus.Fields{
		"service": cb.serviceName,
		"tenant":  cb.tenantID,
	}).Warn("circuit breaker opened")
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = model.CircuitHalfOpen
	cb.trialInFlight = 0
	cb.trialSuccesses = 0
	logrus.WithFields(logrus.Fields{
		"service": cb.serviceName,
		"tenant":  cb.tenantID,
	}).Info("circuit breaker half-open, probing downstream")
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = model.CircuitClosed
	cb.window = make([]bool, cb.cfg.SlidingWindowSize)
	cb.head = 0
	cb.filled = 0
	cb.trialInFlight = 0
	cb.trialSuccesses = 0
	logrus.WithFields(logrus.Fields{
		"service": cb.serviceName,
		"tenant":  cb.tenantID,
	}).Info("circuit breaker closed")
}
