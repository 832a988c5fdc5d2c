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
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/paybridge/paybridge/model"
)

// scopeFieldsValidation checks that exactly the fields of the chosen level are
// set: a TENANT record with a payment type, or a DOWNSTREAM_CALL record
// without an endpoint, is a configuration mistake, not a broader match.
func scopeFieldsValidation(r *CreateAuthConfiguration) validation.RuleFunc {
	return func(value interface{}) error {
		switch model.ScopeLevel(r.Level) {
		case model.ScopeClearingSystem:
			if r.TenantID != "" || r.PaymentType != "" || r.ServiceType != "" || r.Endpoint != "" {
				return errors.New("clearing-system records carry only an environment")
			}
		case model.ScopeTenant:
			if r.TenantID == "" {
				return errors.New("tenant_id is required at the TENANT level")
			}
			if r.PaymentType != "" || r.ServiceType != "" || r.Endpoint != "" {
				return errors.New("tenant records carry only a tenant_id")
			}
		case model.ScopePaymentType:
			if r.TenantID == "" || r.PaymentType == "" {
				return errors.New("tenant_id and payment_type are required at the PAYMENT_TYPE level")
			}
			if r.ServiceType != "" || r.Endpoint != "" {
				return errors.New("payment-type records carry only tenant_id and payment_type")
			}
		case model.ScopeDownstreamCall:
			if r.TenantID == "" || r.ServiceType == "" || r.Endpoint == "" {
				return errors.New("tenant_id, service_type and endpoint are required at the DOWNSTREAM_CALL level")
			}
		}
		return nil
	}
}

func (r *CreateAuthConfiguration) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Level, validation.Required, validation.In(
			string(model.ScopeClearingSystem), string(model.ScopeTenant),
			string(model.ScopePaymentType), string(model.ScopeDownstreamCall))),
		validation.Field(&r.AuthMethod, validation.Required, validation.In(
			string(model.AuthMethodNone), string(model.AuthMethodAPIKey),
			string(model.AuthMethodJWT), string(model.AuthMethodOAuth2),
			string(model.AuthMethodMutualTLS))),
		validation.Field(&r.CredentialRef, validation.When(
			r.AuthMethod != string(model.AuthMethodNone), validation.Required)),
		validation.Field(&r.Level, validation.By(scopeFieldsValidation(r))),
	)
}

func (r *UpdateAuthConfiguration) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AuthMethod, validation.Required, validation.In(
			string(model.AuthMethodNone), string(model.AuthMethodAPIKey),
			string(model.AuthMethodJWT), string(model.AuthMethodOAuth2),
			string(model.AuthMethodMutualTLS))),
	)
}

func (r *CreateResiliencyConfiguration) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ServiceName, validation.Required),
		validation.Field(&r.Priority, validation.Min(0)),
		validation.Field(&r.Fallback, validation.By(func(value interface{}) error {
			if r.Fallback == nil {
				return nil
			}
			switch r.Fallback.Strategy {
			case model.FallbackFail, model.FallbackStaticResponse, model.FallbackQueueForRetry:
				return nil
			}
			return errors.New("fallback strategy must be FAIL, STATIC_RESPONSE or QUEUE_FOR_RETRY")
		})),
	)
}

func (r *RouteDownstream) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.ServiceType, validation.Required),
		validation.Field(&r.Endpoint, validation.Required),
		validation.Field(&r.Payment, validation.By(func(value interface{}) error {
			if r.Payment == nil {
				return nil
			}
			if r.Payment.Amount.IsNegative() {
				return errors.New("payment amount cannot be negative")
			}
			if r.Payment.Currency == "" {
				return errors.New("payment currency is required")
			}
			return nil
		})),
	)
}

func (r *Reprocess) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ServiceName, validation.Required),
	)
}

func (r *TenantAccess) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.ServiceType, validation.Required),
	)
}

func (r *CreateDownstreamService) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ServiceName, validation.Required),
		validation.Field(&r.BaseURL, validation.Required),
	)
}
