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

package model

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Safe defaults applied when no configuration row is active for a service, or
// when a stored configuration carries values that cannot be honored.
const (
	DefaultMaxAttempts       = 3
	DefaultCallTimeoutMs     = 30_000
	DefaultBackoffInitialMs  = 500
	DefaultBackoffMultiplier = 2.0
	// BackoffCeilingMs caps exponential backoff so a high attempt count never
	// produces an unbounded wait.
	BackoffCeilingMs = 300_000
)

// FallbackStrategy selects what happens when a call cannot complete.
type FallbackStrategy string

const (
	FallbackFail           FallbackStrategy = "FAIL"
	FallbackStaticResponse FallbackStrategy = "STATIC_RESPONSE"
	FallbackQueueForRetry  FallbackStrategy = "QUEUE_FOR_RETRY"
)

// CircuitState is the three-state guard over a consistently failing dependency.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerConfig configures the breaker for one (service, tenant) pair.
type CircuitBreakerConfig struct {
	// FailureRateThreshold is a ratio in (0, 1]. The breaker opens when the
	// failure rate over the sliding window reaches it.
	FailureRateThreshold     float64 `json:"failure_rate_threshold"`
	SlidingWindowSize        int     `json:"sliding_window_size"`
	MinimumCalls             int     `json:"minimum_calls"`
	OpenStateDurationSeconds int     `json:"open_state_duration_seconds"`
	HalfOpenTrialCalls       int     `json:"half_open_trial_calls"`
}

// OpenStateDuration returns how long the breaker stays OPEN before probing.
func (c CircuitBreakerConfig) OpenStateDuration() time.Duration {
	return time.Duration(c.OpenStateDurationSeconds) * time.Second
}

// RetryConfig bounds the inline retry loop for retryable failures.
type RetryConfig struct {
	MaxAttempts           int      `json:"max_attempts"`
	BackoffInitialMs      int64    `json:"backoff_initial_ms"`
	BackoffMultiplier     float64  `json:"backoff_multiplier"`
	RetryableErrorClasses []string `json:"retryable_error_classes,omitempty"`
}

// BulkheadConfig bounds concurrent in-flight calls per (service, tenant).
type BulkheadConfig struct {
	MaxConcurrentCalls int `json:"max_concurrent_calls"`
	// MaxQueuedCalls is the number of admissions allowed to wait for a free
	// slot. Zero means reject immediately once all slots are taken.
	MaxQueuedCalls     int   `json:"max_queued_calls"`
	QueueWaitTimeoutMs int64 `json:"queue_wait_timeout_ms"`
}

// TimeoutConfig bounds the network call itself.
type TimeoutConfig struct {
	CallTimeoutMs int64 `json:"call_timeout_ms"`
}

// CallTimeout returns the bound as a duration.
func (c TimeoutConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// FallbackConfig selects the action taken when the breaker is open or retries
// are exhausted.
type FallbackConfig struct {
	Strategy          FallbackStrategy `json:"strategy"`
	StaticResponseRef string           `json:"static_response_ref,omitempty"`
}

// ResiliencyConfiguration is the stored resiliency policy for a service,
// optionally narrowed to one tenant. Multiple rows may exist per key; the
// highest-priority active one wins. A row with an empty tenant id is the
// per-service default.
type ResiliencyConfiguration struct {
	ConfigID       string                `json:"config_id"`
	ServiceName    string                `json:"service_name"`
	TenantID       string                `json:"tenant_id,omitempty"`
	Priority       int                   `json:"priority"`
	IsActive       bool                  `json:"is_active"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker,omitempty"`
	Retry          *RetryConfig          `json:"retry,omitempty"`
	Bulkhead       *BulkheadConfig       `json:"bulkhead,omitempty"`
	Timeout        *TimeoutConfig        `json:"timeout,omitempty"`
	Fallback       *FallbackConfig       `json:"fallback,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// SafeDefaultConfiguration is the hardcoded last resort: 3 retries, 30s call
// timeout, breaker disabled, no bulkhead, fail-fast fallback.
func SafeDefaultConfiguration(serviceName, tenantID string) *ResiliencyConfiguration {
	return &ResiliencyConfiguration{
		ServiceName: serviceName,
		TenantID:    tenantID,
		IsActive:    true,
		Retry: &RetryConfig{
			MaxAttempts:       DefaultMaxAttempts,
			BackoffInitialMs:  DefaultBackoffInitialMs,
			BackoffMultiplier: DefaultBackoffMultiplier,
		},
		Timeout:  &TimeoutConfig{CallTimeoutMs: DefaultCallTimeoutMs},
		Fallback: &FallbackConfig{Strategy: FallbackFail},
	}
}

// Normalize rewrites out-of-range values to the safe defaults. Misconfiguration
// is corrected once at load time so the call path never re-validates it. It
// returns the configuration to allow chaining.
func (c *ResiliencyConfiguration) Normalize() *ResiliencyConfiguration {
	if c.Retry == nil {
		c.Retry = &RetryConfig{
			MaxAttempts:       DefaultMaxAttempts,
			BackoffInitialMs:  DefaultBackoffInitialMs,
			BackoffMultiplier: DefaultBackoffMultiplier,
		}
	}
	if c.Retry.MaxAttempts <= 0 {
		logrus.Warnf("resiliency config %s: max_attempts %d out of range, using %d", c.ConfigID, c.Retry.MaxAttempts, DefaultMaxAttempts)
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BackoffInitialMs <= 0 {
		c.Retry.BackoffInitialMs = DefaultBackoffInitialMs
	}
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = DefaultBackoffMultiplier
	}

	if c.Timeout == nil || c.Timeout.CallTimeoutMs <= 0 {
		c.Timeout = &TimeoutConfig{CallTimeoutMs: DefaultCallTimeoutMs}
	}

	if c.Fallback == nil || !validFallbackStrategy(c.Fallback.Strategy) {
		c.Fallback = &FallbackConfig{Strategy: FallbackFail}
	}

	if c.CircuitBreaker != nil {
		cb := c.CircuitBreaker
		if cb.FailureRateThreshold <= 0 || cb.FailureRateThreshold > 1 ||
			cb.SlidingWindowSize <= 0 || cb.OpenStateDurationSeconds <= 0 {
			logrus.Warnf("resiliency config %s: circuit breaker misconfigured, disabling breaker", c.ConfigID)
			c.CircuitBreaker = nil
		} else {
			if cb.MinimumCalls <= 0 {
				cb.MinimumCalls = cb.SlidingWindowSize
			}
			if cb.HalfOpenTrialCalls <= 0 {
				cb.HalfOpenTrialCalls = 1
			}
		}
	}

	if c.Bulkhead != nil {
		bh := c.Bulkhead
		if bh.MaxConcurrentCalls <= 0 {
			logrus.Warnf("resiliency config %s: bulkhead misconfigured, disabling bulkhead", c.ConfigID)
			c.Bulkhead = nil
		} else {
			if bh.MaxQueuedCalls < 0 {
				bh.MaxQueuedCalls = 0
			}
			if bh.QueueWaitTimeoutMs <= 0 {
				bh.QueueWaitTimeoutMs = c.Timeout.CallTimeoutMs
			}
		}
	}
	return c
}

// NextBackoff computes the delay before the given attempt (1-based) using the
// exponential formula backoff_initial * multiplier^(attempt-1), capped at the
// fixed ceiling.
func (r RetryConfig) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(r.BackoffInitialMs)
	for i := 1; i < attempt; i++ {
		delay *= r.BackoffMultiplier
		if delay >= float64(BackoffCeilingMs) {
			delay = float64(BackoffCeilingMs)
			break
		}
	}
	return time.Duration(delay) * time.Millisecond
}

func validFallbackStrategy(s FallbackStrategy) bool {
	switch s {
	case FallbackFail, FallbackStaticResponse, FallbackQueueForRetry:
		return true
	}
	return false
}

// BreakerSnapshot is the externally visible state of one breaker entry,
// served by the resiliency health API.
type BreakerSnapshot struct {
	ServiceName    string       `json:"service_name"`
	TenantID       string       `json:"tenant_id"`
	State          CircuitState `json:"state"`
	WindowSize     int          `json:"window_size"`
	WindowFailures int          `json:"window_failures"`
	OpenedAt       *time.Time   `json:"opened_at,omitempty"`
}
