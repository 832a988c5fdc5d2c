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

	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/cache"
	"github.com/paybridge/paybridge/database"
	"github.com/paybridge/paybridge/model"
)

// AuthResolver resolves the effective authentication configuration for a
// downstream call by walking the four scope levels from most to least
// specific. The first level with an active record wins outright; there is no
// merging of fields across levels.
type AuthResolver struct {
	datasource  database.IDataSource
	cache       cache.Cache
	environment string
	cacheTTL    time.Duration
}

func NewAuthResolver(ds database.IDataSource, ca cache.Cache, environment string, cacheTTL time.Duration) *AuthResolver {
	return &AuthResolver{
		datasource:  ds,
		cache:       ca,
		environment: environment,
		cacheTTL:    cacheTTL,
	}
}

// cachedLookup is the per-scope cache entry. Absence is cached too, so a scope
// with no record does not hit the database on every call. Checked
// distinguishes a cached negative from a cache miss, which leaves the target
// zero-valued.
type cachedLookup struct {
	Checked bool                   `json:"checked"`
	Found   bool                   `json:"found"`
	Record  *model.AuthLevelRecord `json:"record,omitempty"`
}

// Resolve returns the effective configuration for the call. Resolution is
// total: when no level has an active record, or the store cannot be read, the
// call proceeds with whatever the remaining levels yield rather than failing.
func (r *AuthResolver) Resolve(ctx context.Context, tenantID, serviceType, endpoint, paymentType string) *model.ResolvedAuthConfiguration {
	scopes := []model.ScopeKey{
		model.DownstreamCallScope(tenantID, serviceType, endpoint),
		model.PaymentTypeScope(tenantID, paymentType),
		model.TenantScope(tenantID),
		model.ClearingSystemScope(r.environment),
	}

	for _, scope := range scopes {
		// A payment-type scope without a payment type can never hold a record.
		if scope.Level == model.ScopePaymentType && scope.PaymentType == "" {
			continue
		}

		if record := r.lookup(ctx, scope); record != nil {
			return resolveFromRecord(record)
		}
	}

	return model.UnauthenticatedConfiguration()
}

// lookup reads one scope level. A store read error degrades to "no record at
// this level": it is logged, not cached, and resolution falls through to the
// next scope, so routing never blocks on a configuration outage.
func (r *AuthResolver) lookup(ctx context.Context, scope model.ScopeKey) *model.AuthLevelRecord {
	key := scope.String()

	var cached cachedLookup
	if err := r.cache.Get(ctx, key, &cached); err == nil && cached.Checked {
		if cached.Found {
			return cached.Record
		}
		return nil
	}

	record, err := r.datasource.GetActiveAuthConfiguration(ctx, scope)
	if err != nil {
		logrus.WithError(err).WithField("scope", key).Warn("auth configuration store read failed, treating level as empty")
		return nil
	}

	entry := cachedLookup{Checked: true, Found: record != nil, Record: record}
	if err := r.cache.Set(ctx, key, &entry, r.cacheTTL); err != nil {
		logrus.WithError(err).Warn("failed to cache auth configuration lookup")
	}
	return record
}

// Invalidate drops the cached lookup for one scope. The configuration API
// calls it on every write so the next call re-reads the store.
func (r *AuthResolver) Invalidate(ctx context.Context, scope model.ScopeKey) error {
	return r.cache.Delete(ctx, scope.String())
}

func resolveFromRecord(record *model.AuthLevelRecord) *model.ResolvedAuthConfiguration {
	resolved := &model.ResolvedAuthConfiguration{
		AuthMethod:           record.AuthMethod,
		CredentialRef:        record.CredentialRef,
		IncludeClientHeaders: record.IncludeClientHeaders,
		SourceLevel:          record.Scope.Level,
	}
	if len(record.HeaderOverrides) > 0 {
		resolved.Headers = make(map[string]string, len(record.HeaderOverrides))
		for k, v := range record.HeaderOverrides {
			resolved.Headers[k] = v
		}
	}
	return resolved
}
