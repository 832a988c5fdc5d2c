package paybridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/paybridge/paybridge/model"
)

func TestResolvePrecedenceMostSpecificWins(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	callScope := model.DownstreamCallScope("tn_1", "fraud-check", "/v1/score")
	ds.On("GetActiveAuthConfiguration", mock.Anything, callScope).Return(&model.AuthLevelRecord{
		RecordID:             "auth_call",
		Scope:                callScope,
		AuthMethod:           model.AuthMethodMutualTLS,
		CredentialRef:        "vault://certs/fraud",
		IncludeClientHeaders: false,
		IsActive:             true,
	}, nil)

	resolved := bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "ACH")
	assert.Equal(t, model.AuthMethodMutualTLS, resolved.AuthMethod)
	assert.Equal(t, model.ScopeDownstreamCall, resolved.SourceLevel)
	assert.False(t, resolved.IncludeClientHeaders)

	// The winning level decided everything; broader levels were never read.
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 1)
}

func TestResolveFallsThroughToTenantLevel(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveAuthConfiguration", mock.Anything, model.DownstreamCallScope("tn_1", "fraud-check", "/v1/score")).Return(nil, nil)
	ds.On("GetActiveAuthConfiguration", mock.Anything, model.PaymentTypeScope("tn_1", "ACH")).Return(nil, nil)
	ds.On("GetActiveAuthConfiguration", mock.Anything, model.TenantScope("tn_1")).Return(&model.AuthLevelRecord{
		RecordID:             "auth_tenant",
		Scope:                model.TenantScope("tn_1"),
		AuthMethod:           model.AuthMethodAPIKey,
		CredentialRef:        "vault://tenants/tn_1/api-key",
		IncludeClientHeaders: true,
		HeaderOverrides:      map[string]string{"X-Channel": "gateway"},
		IsActive:             true,
	}, nil)

	resolved := bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "ACH")
	assert.Equal(t, model.AuthMethodAPIKey, resolved.AuthMethod)
	assert.Equal(t, model.ScopeTenant, resolved.SourceLevel)
	assert.Equal(t, "gateway", resolved.Headers["X-Channel"])
}

func TestResolveTotalityUnauthenticated(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveAuthConfiguration", mock.Anything, mock.Anything).Return(nil, nil)

	resolved := bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "")
	assert.Equal(t, model.AuthMethodNone, resolved.AuthMethod)
	assert.True(t, resolved.IncludeClientHeaders)
	assert.Empty(t, resolved.SourceLevel)

	// Empty payment type skips the payment-type level entirely: call scope,
	// tenant scope, clearing-system scope.
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 3)
}

func TestResolveCachesPerScopeAndInvalidates(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	tenantScope := model.TenantScope("tn_1")
	ds.On("GetActiveAuthConfiguration", mock.Anything, model.DownstreamCallScope("tn_1", "fraud-check", "/v1/score")).Return(nil, nil)
	ds.On("GetActiveAuthConfiguration", mock.Anything, tenantScope).Return(&model.AuthLevelRecord{
		RecordID:   "auth_tenant",
		Scope:      tenantScope,
		AuthMethod: model.AuthMethodJWT,
		IsActive:   true,
	}, nil)

	bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "")
	bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "")

	// Second resolution served both levels from cache.
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 2)

	assert.NoError(t, bridge.resolver.Invalidate(ctx, tenantScope))

	bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "")

	// Only the invalidated scope re-read the store.
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 3)
}

func TestResolveDegradesWhenStoreUnreachable(t *testing.T) {
	bridge, ds := newMockBridge(t)
	ctx := context.Background()

	ds.On("GetActiveAuthConfiguration", mock.Anything, mock.Anything).Return(nil, errors.New("store unreachable"))

	// An unreadable level counts as empty, so resolution still answers.
	resolved := bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "ACH")
	assert.Equal(t, model.AuthMethodNone, resolved.AuthMethod)
	assert.True(t, resolved.IncludeClientHeaders)
	assert.Empty(t, resolved.SourceLevel)
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 4)

	// Degraded lookups are never cached: the next resolution re-reads every
	// level instead of pinning the outage for a TTL.
	bridge.resolver.Resolve(ctx, "tn_1", "fraud-check", "/v1/score", "ACH")
	ds.AssertNumberOfCalls(t, "GetActiveAuthConfiguration", 8)
}
