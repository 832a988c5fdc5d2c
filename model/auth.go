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
	"fmt"
	"time"
)

// AuthMethod identifies how a downstream call is authenticated.
type AuthMethod string

const (
	AuthMethodNone      AuthMethod = "NONE"
	AuthMethodAPIKey    AuthMethod = "API_KEY"
	AuthMethodJWT       AuthMethod = "JWT"
	AuthMethodOAuth2    AuthMethod = "OAUTH2_CLIENT_CREDENTIALS"
	AuthMethodMutualTLS AuthMethod = "MUTUAL_TLS"
)

// ScopeLevel names one of the four configuration granularities, ordered from
// least to most specific: clearing system, tenant, payment type, downstream call.
type ScopeLevel string

const (
	ScopeClearingSystem ScopeLevel = "CLEARING_SYSTEM"
	ScopeTenant         ScopeLevel = "TENANT"
	ScopePaymentType    ScopeLevel = "PAYMENT_TYPE"
	ScopeDownstreamCall ScopeLevel = "DOWNSTREAM_CALL"
)

// ScopeKey identifies the exact scope an AuthLevelRecord applies to. Only the
// fields relevant to its level are set; the rest stay empty.
type ScopeKey struct {
	Level       ScopeLevel `json:"level"`
	Environment string     `json:"environment,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	PaymentType string     `json:"payment_type,omitempty"`
	ServiceType string     `json:"service_type,omitempty"`
	Endpoint    string     `json:"endpoint,omitempty"`
}

// ClearingSystemScope builds the scope key for environment-wide configuration.
func ClearingSystemScope(environment string) ScopeKey {
	return ScopeKey{Level: ScopeClearingSystem, Environment: environment}
}

// TenantScope builds the scope key for tenant-wide configuration.
func TenantScope(tenantID string) ScopeKey {
	return ScopeKey{Level: ScopeTenant, TenantID: tenantID}
}

// PaymentTypeScope builds the scope key for payment-type configuration within a tenant.
func PaymentTypeScope(tenantID, paymentType string) ScopeKey {
	return ScopeKey{Level: ScopePaymentType, TenantID: tenantID, PaymentType: paymentType}
}

// DownstreamCallScope builds the most specific scope key, pinned to one
// endpoint of one service type for one tenant.
func DownstreamCallScope(tenantID, serviceType, endpoint string) ScopeKey {
	return ScopeKey{Level: ScopeDownstreamCall, TenantID: tenantID, ServiceType: serviceType, Endpoint: endpoint}
}

// String returns the canonical form of the scope key. It is used as the
// resolver cache key, so two keys naming the same scope must render identically.
func (k ScopeKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", k.Level, k.Environment, k.TenantID, k.PaymentType, k.ServiceType, k.Endpoint)
}

// AuthLevelRecord is one stored authentication configuration at one scope.
// At most one record per exact scope key may be active at a time.
type AuthLevelRecord struct {
	RecordID             string            `json:"record_id"`
	Scope                ScopeKey          `json:"scope"`
	AuthMethod           AuthMethod        `json:"auth_method"`
	CredentialRef        string            `json:"credential_ref"`
	IncludeClientHeaders bool              `json:"include_client_headers"`
	HeaderOverrides      map[string]string `json:"header_overrides,omitempty"`
	IsActive             bool              `json:"is_active"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ResolvedAuthConfiguration is the effective authentication configuration for
// one call. It is derived, never stored: the winning level's record decides
// everything, there is no partial merge across levels.
type ResolvedAuthConfiguration struct {
	AuthMethod           AuthMethod        `json:"auth_method"`
	CredentialRef        string            `json:"credential_ref,omitempty"`
	IncludeClientHeaders bool              `json:"include_client_headers"`
	Headers              map[string]string `json:"headers,omitempty"`
	// SourceLevel records which of the four levels won the resolution,
	// or empty when no level had an active record.
	SourceLevel ScopeLevel `json:"source_level,omitempty"`
}

// UnauthenticatedConfiguration is the total-resolution fallback: no level has
// an active record, so the call goes out with no credentials attached.
func UnauthenticatedConfiguration() *ResolvedAuthConfiguration {
	return &ResolvedAuthConfiguration{
		AuthMethod:           AuthMethodNone,
		IncludeClientHeaders: true,
	}
}

// ValidAuthMethod reports whether m is one of the known authentication methods.
func ValidAuthMethod(m AuthMethod) bool {
	switch m {
	case AuthMethodNone, AuthMethodAPIKey, AuthMethodJWT, AuthMethodOAuth2, AuthMethodMutualTLS:
		return true
	}
	return false
}
