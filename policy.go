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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/cache"
	"github.com/paybridge/paybridge/database"
	"github.com/paybridge/paybridge/model"
)

// PolicyEngine loads and applies the resiliency policy for a downstream call.
// Policy lookup falls through tenant-specific row, per-service default row,
// and finally the hardcoded safe defaults, so execution always has a policy.
type PolicyEngine struct {
	datasource database.IDataSource
	cache      cache.Cache
	cacheTTL   time.Duration
}

func NewPolicyEngine(ds database.IDataSource, ca cache.Cache, cacheTTL time.Duration) *PolicyEngine {
	return &PolicyEngine{datasource: ds, cache: ca, cacheTTL: cacheTTL}
}

func policyCacheKey(serviceName, tenantID string) string {
	return "policy:" + serviceName + ":" + tenantID
}

// Load returns the normalized effective policy for the pair. Loading is total:
// a store read error is logged and degrades to the hardcoded safe defaults, so
// the hot path never fails on a configuration outage. Degraded results are not
// cached; the next call re-reads the store.
func (p *PolicyEngine) Load(ctx context.Context, serviceName, tenantID string) *model.ResiliencyConfiguration {
	key := policyCacheKey(serviceName, tenantID)

	var cached model.ResiliencyConfiguration
	if err := p.cache.Get(ctx, key, &cached); err == nil && cached.ServiceName != "" {
		return &cached
	}

	degraded := false
	cfg, err := p.datasource.GetActiveResiliencyConfiguration(ctx, serviceName, tenantID)
	if err != nil {
		logrus.WithError(err).WithField("service", serviceName).Warn("resiliency configuration store read failed, using safe defaults")
		degraded = true
		cfg = nil
	}
	if cfg == nil && !degraded && tenantID != "" {
		cfg, err = p.datasource.GetActiveResiliencyConfiguration(ctx, serviceName, "")
		if err != nil {
			logrus.WithError(err).WithField("service", serviceName).Warn("resiliency configuration store read failed, using safe defaults")
			degraded = true
			cfg = nil
		}
	}
	if cfg == nil {
		cfg = model.SafeDefaultConfiguration(serviceName, tenantID)
	}
	cfg.Normalize()

	if !degraded {
		if err := p.cache.Set(ctx, key, cfg, p.cacheTTL); err != nil {
			logrus.WithError(err).Warn("failed to cache resiliency policy")
		}
	}
	return cfg
}

// Invalidate drops the cached policy for the pair, and the per-service default
// entry alongside it.
func (p *PolicyEngine) Invalidate(ctx context.Context, serviceName, tenantID string) {
	if err := p.cache.Delete(ctx, policyCacheKey(serviceName, tenantID)); err != nil {
		logrus.WithError(err).Warn("failed to invalidate resiliency policy cache")
	}
	if tenantID != "" {
		if err := p.cache.Delete(ctx, policyCacheKey(serviceName, "")); err != nil {
			logrus.WithError(err).Warn("failed to invalidate resiliency policy cache")
		}
	}
}

// AttemptResult is what one downstream attempt produced, before retry policy
// is applied.
type AttemptResult struct {
	Outcome  model.Outcome
	Response *model.DownstreamResponse
	Err      error
}

// CallFunc performs one downstream attempt under the context's deadline.
type CallFunc func(ctx context.Context) AttemptResult

// ExecuteResult carries the settled result of an execution plus the attempts
// consumed, so queue hand-off can count them against the cumulative ceiling.
type ExecuteResult struct {
	Outcome  model.Outcome
	Response *model.DownstreamResponse
	Attempts int
	Err      error
}

// Execute runs the call under the policy's timeout and inline retry sections.
// maxAttempts bounds the loop; callers that cannot block pass 1 to disable
// inline retries regardless of the policy. Fatal outcomes stop immediately.
func (p *PolicyEngine) Execute(ctx context.Context, cfg *model.ResiliencyConfiguration, maxAttempts int, call CallFunc) ExecuteResult {
	if maxAttempts <= 0 || maxAttempts > cfg.Retry.MaxAttempts {
		maxAttempts = cfg.Retry.MaxAttempts
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Duration(cfg.Retry.BackoffInitialMs) * time.Millisecond
	expo.Multiplier = cfg.Retry.BackoffMultiplier
	expo.MaxInterval = time.Duration(model.BackoffCeilingMs) * time.Millisecond
	expo.RandomizationFactor = 0
	expo.Reset()

	result := ExecuteResult{}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.CallTimeout())
		attemptResult := call(attemptCtx)
		cancel()

		result.Attempts = attempt
		result.Outcome = attemptResult.Outcome
		result.Response = attemptResult.Response
		result.Err = attemptResult.Err

		if attemptResult.Outcome == model.OutcomeSuccess || attemptResult.Outcome == model.OutcomeFatal {
			return result
		}
		if attempt == maxAttempts {
			return result
		}

		wait := expo.NextBackOff()
		logrus.WithFields(logrus.Fields{
			"service": cfg.ServiceName,
			"attempt": attempt,
			"backoff": wait.String(),
		}).Info("downstream attempt failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		}
	}
	return result
}
