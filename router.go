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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/internal/request"
	"github.com/paybridge/paybridge/model"
)

// RouteDownstream routes one call to an external system through the full
// boundary: tenant access check, auth resolution, resiliency policy, and
// fallback. Downstream failures come back as CallResult values; the error
// return is reserved for the gateway's own faults.
func (p *PayBridge) RouteDownstream(ctx context.Context, req *model.DownstreamRequest) (*model.CallResult, error) {
	ctx, span := tracer.Start(ctx, "Routing Downstream Call")
	defer span.End()

	allowed, err := p.datasource.IsTenantServiceAllowed(ctx, req.TenantID, req.ServiceType, req.Endpoint, req.PaymentType)
	if err != nil {
		return nil, err
	}
	if !allowed {
		logrus.WithFields(logrus.Fields{
			"tenant":  req.TenantID,
			"service": req.ServiceType,
		}).Warn("tenant denied access to downstream service")
		return model.RejectedResult(model.ReasonAccessDenied), nil
	}

	route, err := p.datasource.GetServiceRoute(ctx, req.ServiceType, req.TenantID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Downstream service is not declared", req.ServiceType)
	}

	resolved := p.resolver.Resolve(ctx, req.TenantID, req.ServiceType, req.Endpoint, req.PaymentType)
	headers, err := p.buildHeaders(ctx, req, resolved)
	if err != nil {
		return nil, err
	}

	cfg := p.policies.Load(ctx, req.ServiceType, req.TenantID)

	breaker := p.breakers.Get(req.ServiceType, req.TenantID, cfg.CircuitBreaker)
	if breaker != nil && !breaker.Allow() {
		return p.fallback(ctx, req, cfg, model.ReasonBreakerOpen, 0, nil)
	}

	bulkhead := p.bulkheads.Get(req.ServiceType, req.TenantID, cfg.Bulkhead)
	if bulkhead != nil {
		if err := bulkhead.Acquire(ctx); err != nil {
			if errors.Is(err, ErrBulkheadFull) {
				// The rejected call never reached the downstream, so it does
				// not count against the breaker window.
				return p.fallback(ctx, req, cfg, model.ReasonBulkheadFull, 0, nil)
			}
			return nil, err
		}
		defer bulkhead.Release()
	}

	maxAttempts := cfg.Retry.MaxAttempts
	if !req.AllowSyncRetry {
		maxAttempts = 1
	}

	url := joinURL(route.BaseURL, req.Endpoint)
	result := p.policies.Execute(ctx, cfg, maxAttempts, func(attemptCtx context.Context) AttemptResult {
		return performCall(attemptCtx, url, req.Payload, headers)
	})

	if breaker != nil {
		breaker.Record(result.Outcome)
	}

	switch result.Outcome {
	case model.OutcomeSuccess:
		return model.SuccessResult(result.Response), nil
	case model.OutcomeFatal:
		r := model.FailedResult("DOWNSTREAM_REJECTED", result.Err)
		r.Response = result.Response
		return r, nil
	default:
		return p.fallback(ctx, req, cfg, model.ReasonRetryExhausted, result.Attempts, result.Err)
	}
}

// performCall sends one POST to the downstream and classifies the reply.
func performCall(ctx context.Context, url string, payload json.RawMessage, headers map[string]string) AttemptResult {
	status, body, err := request.Do(ctx, http.MethodPost, url, payload, headers)
	if err != nil {
		return AttemptResult{Outcome: classifyError(err), Err: err}
	}
	return AttemptResult{
		Outcome:  classifyStatus(status),
		Response: &model.DownstreamResponse{StatusCode: status, Body: body},
	}
}

// classifyStatus maps a downstream HTTP status to an outcome class. Server
// errors and throttling are retryable; other client errors are the caller's
// fault and never retried.
func classifyStatus(status int) model.Outcome {
	switch {
	case status >= 200 && status < 300:
		return model.OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return model.OutcomeRetryable
	case status == http.StatusNotImplemented:
		return model.OutcomeFatal
	case status >= 500:
		return model.OutcomeRetryable
	default:
		return model.OutcomeFatal
	}
}

func classifyError(err error) model.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
		return model.OutcomeTimeout
	}
	return model.OutcomeRetryable
}

// buildHeaders assembles the outbound header set: client headers when the
// resolved configuration includes them, then configured overrides, then the
// credential for the resolved method.
func (p *PayBridge) buildHeaders(ctx context.Context, req *model.DownstreamRequest, resolved *model.ResolvedAuthConfiguration) (map[string]string, error) {
	headers := make(map[string]string)
	if resolved.IncludeClientHeaders {
		for k, v := range req.Headers {
			headers[k] = v
		}
	}
	for k, v := range resolved.Headers {
		headers[k] = v
	}

	if resolved.AuthMethod == model.AuthMethodNone || resolved.CredentialRef == "" {
		return headers, nil
	}

	secret, err := p.secrets(ctx, resolved.CredentialRef)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to resolve downstream credential", err)
	}

	switch resolved.AuthMethod {
	case model.AuthMethodAPIKey:
		headers["X-API-Key"] = secret
	case model.AuthMethodJWT, model.AuthMethodOAuth2:
		headers["Authorization"] = request.BearerAuth(secret)
	case model.AuthMethodMutualTLS:
		// The credential names a client certificate; it rides the transport,
		// not a header.
	}
	return headers, nil
}

// fallback applies the policy's fallback section once a call cannot complete.
func (p *PayBridge) fallback(ctx context.Context, req *model.DownstreamRequest, cfg *model.ResiliencyConfiguration, reason string, attempts int, lastErr error) (*model.CallResult, error) {
	switch cfg.Fallback.Strategy {
	case model.FallbackQueueForRetry:
		msg, err := p.queueForRetry(ctx, req, cfg, reason, attempts, lastErr)
		if err != nil {
			return nil, err
		}
		return model.QueuedResult(msg.MessageID, reason), nil

	case model.FallbackStaticResponse:
		result := &model.CallResult{
			Status:   model.CallSuccess,
			Reason:   reason,
			Response: staticResponse(cfg.Fallback.StaticResponseRef),
		}
		return result, nil

	default:
		if reason == model.ReasonRetryExhausted {
			return model.FailedResult(reason, lastErr), nil
		}
		return model.RejectedResult(reason), nil
	}
}

// staticResponse renders the configured static body. A ref that is already
// valid JSON is served as-is; anything else is quoted.
func staticResponse(ref string) *model.DownstreamResponse {
	body := []byte(ref)
	if !json.Valid(body) {
		body, _ = json.Marshal(ref)
	}
	return &model.DownstreamResponse{StatusCode: http.StatusOK, Body: body}
}

// queueForRetry hands the call off to the durable queue. The attempts already
// burned inline count against the same cumulative ceiling the replays use.
func (p *PayBridge) queueForRetry(ctx context.Context, req *model.DownstreamRequest, cfg *model.ResiliencyConfiguration, reason string, attempts int, lastErr error) (*model.QueuedMessage, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &model.QueuedMessage{
		ServiceName:  req.ServiceType,
		TenantID:     req.TenantID,
		Endpoint:     req.Endpoint,
		PaymentType:  req.PaymentType,
		Payload:      req.Payload,
		Headers:      req.Headers,
		Reason:       reason,
		Status:       model.StatusPending,
		AttemptCount: attempts,
		NextRetryAt:  now.Add(cfg.Retry.NextBackoff(attempts + 1)),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(cnf.Queue.DefaultExpirySec) * time.Second),
	}
	if lastErr != nil {
		msg.LastError = lastErr.Error()
	}

	msg, err = p.datasource.RecordQueuedMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	// Dispatch is best effort: the row is the source of truth and the
	// scheduler scan picks up anything the broker loses.
	if err := p.queue.EnqueueReplay(ctx, msg); err != nil {
		logrus.WithError(err).WithField("message", msg.MessageID).Warn("failed to enqueue replay task, scheduler scan will pick it up")
	}

	logrus.WithFields(logrus.Fields{
		"message": msg.MessageID,
		"service": msg.ServiceName,
		"tenant":  msg.TenantID,
		"reason":  reason,
	}).Info("downstream call queued for retry")
	return msg, nil
}

// ReplayMessage re-executes one queued call. Replays bypass the bulkhead, they
// are background work with their own worker bound, but still honor the
// breaker so a recovering downstream is not hammered.
func (p *PayBridge) ReplayMessage(ctx context.Context, msg *model.QueuedMessage) AttemptResult {
	route, err := p.datasource.GetServiceRoute(ctx, msg.ServiceName, msg.TenantID)
	if err != nil {
		return AttemptResult{Outcome: model.OutcomeRetryable, Err: err}
	}
	if route == nil {
		return AttemptResult{Outcome: model.OutcomeFatal, Err: apierror.NewAPIError(apierror.ErrNotFound, "Downstream service is not declared", msg.ServiceName)}
	}

	resolved := p.resolver.Resolve(ctx, msg.TenantID, msg.ServiceName, msg.Endpoint, msg.PaymentType)
	headers, err := p.buildHeaders(ctx, &model.DownstreamRequest{Headers: msg.Headers}, resolved)
	if err != nil {
		return AttemptResult{Outcome: model.OutcomeRetryable, Err: err}
	}

	cfg := p.policies.Load(ctx, msg.ServiceName, msg.TenantID)

	breaker := p.breakers.Get(msg.ServiceName, msg.TenantID, cfg.CircuitBreaker)
	if breaker != nil && !breaker.Allow() {
		return AttemptResult{Outcome: model.OutcomeRetryable, Err: errors.New("circuit breaker open")}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.CallTimeout())
	defer cancel()

	result := performCall(callCtx, joinURL(route.BaseURL, msg.Endpoint), msg.Payload, headers)
	if breaker != nil {
		breaker.Record(result.Outcome)
	}
	return result
}

func joinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
