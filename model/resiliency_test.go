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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmptyConfiguration(t *testing.T) {
	cfg := (&ResiliencyConfiguration{ServiceName: "fraud"}).Normalize()

	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, int64(DefaultCallTimeoutMs), cfg.Timeout.CallTimeoutMs)
	assert.Equal(t, FallbackFail, cfg.Fallback.Strategy)
	assert.Nil(t, cfg.CircuitBreaker)
	assert.Nil(t, cfg.Bulkhead)
}

func TestNormalizeRejectsNegativeThresholds(t *testing.T) {
	cfg := &ResiliencyConfiguration{
		ServiceName: "clearing",
		Retry:       &RetryConfig{MaxAttempts: -2, BackoffInitialMs: -100, BackoffMultiplier: 0.5},
		Timeout:     &TimeoutConfig{CallTimeoutMs: -1},
		CircuitBreaker: &CircuitBreakerConfig{
			FailureRateThreshold: -0.5,
			SlidingWindowSize:    10,
		},
		Bulkhead: &BulkheadConfig{MaxConcurrentCalls: 0, MaxQueuedCalls: -1},
	}
	cfg.Normalize()

	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, int64(DefaultBackoffInitialMs), cfg.Retry.BackoffInitialMs)
	assert.Equal(t, DefaultBackoffMultiplier, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, int64(DefaultCallTimeoutMs), cfg.Timeout.CallTimeoutMs)
	assert.Nil(t, cfg.CircuitBreaker, "misconfigured breaker must be disabled, not partially applied")
	assert.Nil(t, cfg.Bulkhead)
}

func TestNormalizeFillsBreakerDefaults(t *testing.T) {
	cfg := &ResiliencyConfiguration{
		ServiceName: "fraud",
		CircuitBreaker: &CircuitBreakerConfig{
			FailureRateThreshold:     0.5,
			SlidingWindowSize:        10,
			OpenStateDurationSeconds: 30,
		},
	}
	cfg.Normalize()

	assert.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, 10, cfg.CircuitBreaker.MinimumCalls)
	assert.Equal(t, 1, cfg.CircuitBreaker.HalfOpenTrialCalls)
}

func TestNextBackoffMonotonic(t *testing.T) {
	r := RetryConfig{BackoffInitialMs: 100, BackoffMultiplier: 2}

	var prev time.Duration
	for attempt := 1; attempt <= 20; attempt++ {
		d := r.NextBackoff(attempt)
		assert.GreaterOrEqual(t, d, prev, "backoff must be non-decreasing")
		assert.LessOrEqual(t, d, time.Duration(BackoffCeilingMs)*time.Millisecond)
		prev = d
	}

	assert.Equal(t, 100*time.Millisecond, r.NextBackoff(1))
	assert.Equal(t, 200*time.Millisecond, r.NextBackoff(2))
	assert.Equal(t, 400*time.Millisecond, r.NextBackoff(3))
}

func TestScopeKeyString(t *testing.T) {
	a := DownstreamCallScope("tn_1", "fraud", "/score")
	b := DownstreamCallScope("tn_1", "fraud", "/score")
	c := TenantScope("tn_1")

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
}

func TestMessageStatusTerminal(t *testing.T) {
	for _, s := range []MessageStatus{StatusCompleted, StatusCancelled, StatusFailed, StatusExpired} {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []MessageStatus{StatusPending, StatusRetrying, StatusClaimed} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}
