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
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Outcome classifies what happened to one downstream attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeRetryable Outcome = "FAILURE_RETRYABLE"
	OutcomeFatal     Outcome = "FAILURE_FATAL"
	OutcomeTimeout   Outcome = "TIMEOUT"
)

// Failure reports whether the outcome counts against the circuit breaker window.
func (o Outcome) Failure() bool {
	return o == OutcomeRetryable || o == OutcomeFatal || o == OutcomeTimeout
}

// Retryable reports whether the outcome may be retried per policy.
func (o Outcome) Retryable() bool {
	return o == OutcomeRetryable || o == OutcomeTimeout
}

// CallStatus is the externally visible result class of a routed call.
type CallStatus string

const (
	CallSuccess        CallStatus = "SUCCESS"
	CallRejected       CallStatus = "REJECTED"
	CallQueuedForRetry CallStatus = "QUEUED_FOR_RETRY"
	CallFailed         CallStatus = "FAILED"
)

// Rejection reasons surfaced to callers.
const (
	ReasonAccessDenied   = "ACCESS_DENIED"
	ReasonBreakerOpen    = "CIRCUIT_OPEN"
	ReasonBulkheadFull   = "BULKHEAD_FULL"
	ReasonRetryExhausted = "RETRIES_EXHAUSTED"
)

// DownstreamResponse is the opaque reply from an external system.
type DownstreamResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// CallResult is the typed value every routed call resolves to. Downstream
// failures are values, not errors: payment flows branch on Status without
// exception-handling overhead on the hot path.
type CallResult struct {
	Status   CallStatus          `json:"status"`
	Response *DownstreamResponse `json:"response,omitempty"`
	Reason   string              `json:"reason,omitempty"`
	// MessageID tracks a QUEUED_FOR_RETRY hand-off.
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SuccessResult wraps a completed downstream response.
func SuccessResult(resp *DownstreamResponse) *CallResult {
	return &CallResult{Status: CallSuccess, Response: resp}
}

// RejectedResult reports an immediate terminal rejection (access denial,
// breaker open, bulkhead full).
func RejectedResult(reason string) *CallResult {
	return &CallResult{Status: CallRejected, Reason: reason}
}

// QueuedResult reports a hand-off to the retry queue with a tracking id.
func QueuedResult(messageID, reason string) *CallResult {
	return &CallResult{Status: CallQueuedForRetry, MessageID: messageID, Reason: reason}
}

// FailedResult reports a terminal failure of this call.
func FailedResult(reason string, err error) *CallResult {
	r := &CallResult{Status: CallFailed, Reason: reason}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// PaymentContext is the typed payment detail a caller may attach alongside the
// opaque payload; the gateway never interprets it beyond validation.
type PaymentContext struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference,omitempty"`
}

// DownstreamRequest is one routed call: who is calling, where it goes, and
// what travels with it.
type DownstreamRequest struct {
	TenantID    string            `json:"tenant_id"`
	ServiceType string            `json:"service_type"`
	Endpoint    string            `json:"endpoint"`
	PaymentType string            `json:"payment_type,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payment     *PaymentContext   `json:"payment,omitempty"`
	// AllowSyncRetry lets the routing service retry retryable failures inline
	// before falling back. Callers that cannot block disable it and get the
	// queue hand-off after the first failure.
	AllowSyncRetry bool `json:"allow_sync_retry"`
}
