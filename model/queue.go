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
	"time"
)

// MessageStatus is the lifecycle state of a queued downstream call.
type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusRetrying  MessageStatus = "RETRYING"
	StatusClaimed   MessageStatus = "CLAIMED"
	StatusCompleted MessageStatus = "COMPLETED"
	StatusCancelled MessageStatus = "CANCELLED"
	StatusFailed    MessageStatus = "FAILED"
	StatusExpired   MessageStatus = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// QueuedMessage is one downstream call recorded for later replay. Rows are
// created by the routing service when a call exhausts its immediate retry
// budget or the breaker rejects it; only the queue service mutates them
// afterwards.
type QueuedMessage struct {
	MessageID   string            `json:"message_id"`
	ServiceName string            `json:"service_name"`
	TenantID    string            `json:"tenant_id"`
	Endpoint    string            `json:"endpoint"`
	PaymentType string            `json:"payment_type,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Status      MessageStatus     `json:"status"`
	// AttemptCount is cumulative: inline attempts burned by the routing
	// service before the hand-off count against the same ceiling as replays.
	AttemptCount int        `json:"attempt_count"`
	NextRetryAt  time.Time  `json:"next_retry_at"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// IsExpired reports whether the message is past its expiry instant.
func (m *QueuedMessage) IsExpired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// ServiceHealth is the self-healing monitor's verdict for one
// (service, tenant) pair.
type ServiceHealth struct {
	ServiceName        string    `json:"service_name"`
	TenantID           string    `json:"tenant_id"`
	Healthy            bool      `json:"healthy"`
	ConsecutiveHealthy int       `json:"consecutive_healthy"`
	LastProbeAt        time.Time `json:"last_probe_at"`
	LastError          string    `json:"last_error,omitempty"`
}

// DownstreamService is a declared external system the platform calls: the
// route for live traffic and the probe path for the self-healing monitor.
// A row with an empty tenant id is the default route for all tenants.
type DownstreamService struct {
	ServiceName string    `json:"service_name"`
	TenantID    string    `json:"tenant_id,omitempty"`
	BaseURL     string    `json:"base_url"`
	HealthPath  string    `json:"health_path,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
