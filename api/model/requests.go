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
	"github.com/wacul/ptr"

	"github.com/paybridge/paybridge/model"
)

// CreateAuthConfiguration is the request body for one auth record at one
// scope. Scope fields beyond the level's own are rejected by validation.
type CreateAuthConfiguration struct {
	Level                string            `json:"level"`
	Environment          string            `json:"environment,omitempty"`
	TenantID             string            `json:"tenant_id,omitempty"`
	PaymentType          string            `json:"payment_type,omitempty"`
	ServiceType          string            `json:"service_type,omitempty"`
	Endpoint             string            `json:"endpoint,omitempty"`
	AuthMethod           string            `json:"auth_method"`
	CredentialRef        string            `json:"credential_ref,omitempty"`
	IncludeClientHeaders *bool             `json:"include_client_headers,omitempty"`
	HeaderOverrides      map[string]string `json:"header_overrides,omitempty"`
	IsActive             *bool             `json:"is_active,omitempty"`
}

func (r *CreateAuthConfiguration) ToRecord() *model.AuthLevelRecord {
	if r.IncludeClientHeaders == nil {
		r.IncludeClientHeaders = ptr.Bool(true)
	}
	if r.IsActive == nil {
		r.IsActive = ptr.Bool(true)
	}
	return &model.AuthLevelRecord{
		Scope: model.ScopeKey{
			Level:       model.ScopeLevel(r.Level),
			Environment: r.Environment,
			TenantID:    r.TenantID,
			PaymentType: r.PaymentType,
			ServiceType: r.ServiceType,
			Endpoint:    r.Endpoint,
		},
		AuthMethod:           model.AuthMethod(r.AuthMethod),
		CredentialRef:        r.CredentialRef,
		IncludeClientHeaders: *r.IncludeClientHeaders,
		HeaderOverrides:      r.HeaderOverrides,
		IsActive:             *r.IsActive,
	}
}

// UpdateAuthConfiguration carries the mutable fields of a record; the scope is
// immutable once created.
type UpdateAuthConfiguration struct {
	AuthMethod           string            `json:"auth_method"`
	CredentialRef        string            `json:"credential_ref,omitempty"`
	IncludeClientHeaders *bool             `json:"include_client_headers,omitempty"`
	HeaderOverrides      map[string]string `json:"header_overrides,omitempty"`
	IsActive             *bool             `json:"is_active,omitempty"`
}

// CreateResiliencyConfiguration is the request body for a stored policy.
type CreateResiliencyConfiguration struct {
	ServiceName    string                      `json:"service_name"`
	TenantID       string                      `json:"tenant_id,omitempty"`
	Priority       int                         `json:"priority"`
	IsActive       *bool                       `json:"is_active,omitempty"`
	CircuitBreaker *model.CircuitBreakerConfig `json:"circuit_breaker,omitempty"`
	Retry          *model.RetryConfig          `json:"retry,omitempty"`
	Bulkhead       *model.BulkheadConfig       `json:"bulkhead,omitempty"`
	Timeout        *model.TimeoutConfig        `json:"timeout,omitempty"`
	Fallback       *model.FallbackConfig       `json:"fallback,omitempty"`
}

func (r *CreateResiliencyConfiguration) ToConfiguration() *model.ResiliencyConfiguration {
	if r.IsActive == nil {
		r.IsActive = ptr.Bool(true)
	}
	return &model.ResiliencyConfiguration{
		ServiceName:    r.ServiceName,
		TenantID:       r.TenantID,
		Priority:       r.Priority,
		IsActive:       *r.IsActive,
		CircuitBreaker: r.CircuitBreaker,
		Retry:          r.Retry,
		Bulkhead:       r.Bulkhead,
		Timeout:        r.Timeout,
		Fallback:       r.Fallback,
	}
}

// PaymentDetail mirrors the typed payment context a caller may attach.
type PaymentDetail struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference,omitempty"`
}

// RouteDownstream is the request body for one routed call.
type RouteDownstream struct {
	TenantID       string            `json:"tenant_id"`
	ServiceType    string            `json:"service_type"`
	Endpoint       string            `json:"endpoint"`
	PaymentType    string            `json:"payment_type,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Payment        *PaymentDetail    `json:"payment,omitempty"`
	AllowSyncRetry *bool             `json:"allow_sync_retry,omitempty"`
}

func (r *RouteDownstream) ToRequest() *model.DownstreamRequest {
	if r.AllowSyncRetry == nil {
		r.AllowSyncRetry = ptr.Bool(true)
	}
	req := &model.DownstreamRequest{
		TenantID:       r.TenantID,
		ServiceType:    r.ServiceType,
		Endpoint:       r.Endpoint,
		PaymentType:    r.PaymentType,
		Payload:        r.Payload,
		Headers:        r.Headers,
		AllowSyncRetry: *r.AllowSyncRetry,
	}
	if r.Payment != nil {
		req.Payment = &model.PaymentContext{
			Amount:    r.Payment.Amount,
			Currency:  r.Payment.Currency,
			Reference: r.Payment.Reference,
		}
	}
	return req
}

// Reprocess is the request body for a bulk backlog pull.
type Reprocess struct {
	ServiceName string `json:"service_name"`
	TenantID    string `json:"tenant_id,omitempty"`
}

// TenantAccess is the request body for one access rule.
type TenantAccess struct {
	TenantID    string `json:"tenant_id"`
	ServiceType string `json:"service_type"`
	Endpoint    string `json:"endpoint,omitempty"`
	PaymentType string `json:"payment_type,omitempty"`
	IsAllowed   *bool  `json:"is_allowed,omitempty"`
}

// CreateDownstreamService declares a routable external system.
type CreateDownstreamService struct {
	ServiceName string `json:"service_name"`
	TenantID    string `json:"tenant_id,omitempty"`
	BaseURL     string `json:"base_url"`
	HealthPath  string `json:"health_path,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

func (r *CreateDownstreamService) ToService() *model.DownstreamService {
	if r.IsActive == nil {
		r.IsActive = ptr.Bool(true)
	}
	return &model.DownstreamService{
		ServiceName: r.ServiceName,
		TenantID:    r.TenantID,
		BaseURL:     r.BaseURL,
		HealthPath:  r.HealthPath,
		IsActive:    *r.IsActive,
	}
}
