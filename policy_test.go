package paybridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/paybridge/paybridge/model"
)

func TestPolicyLoadFallsThroughToServiceDefault(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(nil, nil)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "").Return(&model.ResiliencyConfiguration{
		ConfigID:    "rcfg_default",
		ServiceName: "fraud-check",
		IsActive:    true,
		Retry:       &model.RetryConfig{MaxAttempts: 5, BackoffInitialMs: 100, BackoffMultiplier: 2},
	}, nil)

	cfg := bridge.policies.Load(ctx, "fraud-check", "tn_1")
	assert.Equal(t, "rcfg_default", cfg.ConfigID)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	// Normalization filled the missing sections.
	assert.NotNil(t, cfg.Timeout)
	assert.NotNil(t, cfg.Fallback)
}

func TestPolicyLoadSafeDefaults(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(nil, nil)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "").Return(nil, nil)

	cfg := bridge.policies.Load(ctx, "fraud-check", "tn_1")
	assert.Equal(t, model.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, int64(model.DefaultCallTimeoutMs), cfg.Timeout.CallTimeoutMs)
	assert.Equal(t, model.FallbackFail, cfg.Fallback.Strategy)
	assert.Nil(t, cfg.CircuitBreaker)
}

func TestPolicyLoadSafeDefaultsWhenStoreUnreachable(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(nil, errors.New("store unreachable"))

	// A store outage never fails the routed call: the engine falls back to
	// the safe defaults instead.
	cfg := bridge.policies.Load(ctx, "fraud-check", "tn_1")
	assert.Equal(t, model.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, int64(model.DefaultCallTimeoutMs), cfg.Timeout.CallTimeoutMs)
	assert.Equal(t, model.FallbackFail, cfg.Fallback.Strategy)

	// The degraded result is not cached, so the next load retries the store.
	bridge.policies.Load(ctx, "fraud-check", "tn_1")
	ds.AssertNumberOfCalls(t, "GetActiveResiliencyConfiguration", 2)
}

func TestPolicyExecuteRetriesUntilSuccess(t *testing.T) {
	bridge, _ := newMockBridge(t)

	cfg := model.SafeDefaultConfiguration("fraud-check", "tn_1")
	cfg.Retry.BackoffInitialMs = 1
	cfg.Normalize()

	calls := 0
	result := bridge.policies.Execute(context.Background(), cfg, 3, func(ctx context.Context) AttemptResult {
		calls++
		if calls < 3 {
			return AttemptResult{Outcome: model.OutcomeRetryable}
		}
		return AttemptResult{Outcome: model.OutcomeSuccess, Response: &model.DownstreamResponse{StatusCode: 200}}
	})

	assert.Equal(t, model.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
}

func TestPolicyExecuteFatalStopsImmediately(t *testing.T) {
	bridge, _ := newMockBridge(t)

	cfg := model.SafeDefaultConfiguration("fraud-check", "tn_1")
	cfg.Normalize()

	calls := 0
	result := bridge.policies.Execute(context.Background(), cfg, 3, func(ctx context.Context) AttemptResult {
		calls++
		return AttemptResult{Outcome: model.OutcomeFatal, Response: &model.DownstreamResponse{StatusCode: 422}}
	})

	assert.Equal(t, model.OutcomeFatal, result.Outcome)
	assert.Equal(t, 1, calls, "fatal outcomes are never retried")
}

func TestPolicyExecuteSingleAttemptBound(t *testing.T) {
	bridge, _ := newMockBridge(t)

	cfg := model.SafeDefaultConfiguration("fraud-check", "tn_1")
	cfg.Normalize()

	calls := 0
	result := bridge.policies.Execute(context.Background(), cfg, 1, func(ctx context.Context) AttemptResult {
		calls++
		return AttemptResult{Outcome: model.OutcomeRetryable}
	})

	assert.Equal(t, model.OutcomeRetryable, result.Outcome)
	assert.Equal(t, 1, calls, "callers that cannot block get exactly one attempt")
}
