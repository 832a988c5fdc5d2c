package paybridge

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/paybridge/paybridge/database/mocks"
	"github.com/paybridge/paybridge/internal/request"
	"github.com/paybridge/paybridge/model"
)

func testRequest() *model.DownstreamRequest {
	return &model.DownstreamRequest{
		TenantID:       "tn_1",
		ServiceType:    "fraud-check",
		Endpoint:       "/v1/score",
		PaymentType:    "ACH",
		Payload:        json.RawMessage(`{"amount":"125.50","currency":"USD"}`),
		Headers:        map[string]string{"X-Request-Id": "req_1"},
		AllowSyncRetry: true,
	}
}

func stubHappyLookups(ds *mocks.MockDataSource) {
	ds.On("IsTenantServiceAllowed", mock.Anything, "tn_1", "fraud-check", "/v1/score", "ACH").Return(true, nil)
	ds.On("GetServiceRoute", mock.Anything, "fraud-check", "tn_1").Return(&model.DownstreamService{
		ServiceName: "fraud-check",
		BaseURL:     "http://fraud.example.com",
		IsActive:    true,
	}, nil)
	ds.On("GetActiveAuthConfiguration", mock.Anything, mock.Anything).Return(nil, nil)
}

func TestRouteDownstreamAccessDenied(t *testing.T) {
	bridge, ds := newMockBridge(t)

	ds.On("IsTenantServiceAllowed", mock.Anything, "tn_1", "fraud-check", "/v1/score", "ACH").Return(false, nil)

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallRejected, result.Status)
	assert.Equal(t, model.ReasonAccessDenied, result.Reason)
}

func TestRouteDownstreamSuccess(t *testing.T) {
	bridge, ds := newMockBridge(t)
	stubHappyLookups(ds)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", mock.Anything).Return(nil, nil)

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://fraud.example.com/v1/score",
		httpmock.NewStringResponder(200, `{"score":17}`))

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallSuccess, result.Status)
	assert.Equal(t, 200, result.Response.StatusCode)
	assert.JSONEq(t, `{"score":17}`, string(result.Response.Body))
}

func TestRouteDownstreamQueuesAfterExhaustedRetries(t *testing.T) {
	bridge, ds := newMockBridge(t)
	stubHappyLookups(ds)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(&model.ResiliencyConfiguration{
		ConfigID:    "rcfg_1",
		ServiceName: "fraud-check",
		TenantID:    "tn_1",
		IsActive:    true,
		Retry:       &model.RetryConfig{MaxAttempts: 2, BackoffInitialMs: 1, BackoffMultiplier: 2},
		Fallback:    &model.FallbackConfig{Strategy: model.FallbackQueueForRetry},
	}, nil)
	ds.On("RecordQueuedMessage", mock.Anything, mock.MatchedBy(func(msg *model.QueuedMessage) bool {
		// Inline attempts count against the cumulative ceiling.
		return msg.AttemptCount == 2 && msg.Status == model.StatusPending && msg.Reason == model.ReasonRetryExhausted
	})).Return(&model.QueuedMessage{MessageID: "msg_1", Status: model.StatusPending}, nil)

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://fraud.example.com/v1/score",
		httpmock.NewStringResponder(503, `{"error":"unavailable"}`))

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallQueuedForRetry, result.Status)
	assert.Equal(t, "msg_1", result.MessageID)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	ds.AssertExpectations(t)
}

func TestRouteDownstreamBreakerOpenRejects(t *testing.T) {
	bridge, ds := newMockBridge(t)
	stubHappyLookups(ds)

	breakerCfg := &model.CircuitBreakerConfig{
		FailureRateThreshold:     0.5,
		SlidingWindowSize:        10,
		MinimumCalls:             2,
		OpenStateDurationSeconds: 60,
		HalfOpenTrialCalls:       1,
	}
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(&model.ResiliencyConfiguration{
		ConfigID:       "rcfg_1",
		ServiceName:    "fraud-check",
		TenantID:       "tn_1",
		IsActive:       true,
		CircuitBreaker: breakerCfg,
	}, nil)

	bridge.breakers.Get("fraud-check", "tn_1", breakerCfg).ForceOpen()

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallRejected, result.Status)
	assert.Equal(t, model.ReasonBreakerOpen, result.Reason)
	assert.Zero(t, httpmock.GetTotalCallCount(), "an open breaker short-circuits before the network")
}

func TestRouteDownstreamStaticFallback(t *testing.T) {
	bridge, ds := newMockBridge(t)
	stubHappyLookups(ds)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", "tn_1").Return(&model.ResiliencyConfiguration{
		ConfigID:    "rcfg_1",
		ServiceName: "fraud-check",
		TenantID:    "tn_1",
		IsActive:    true,
		Retry:       &model.RetryConfig{MaxAttempts: 1, BackoffInitialMs: 1, BackoffMultiplier: 2},
		Fallback:    &model.FallbackConfig{Strategy: model.FallbackStaticResponse, StaticResponseRef: `{"score":0,"degraded":true}`},
	}, nil)

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://fraud.example.com/v1/score",
		httpmock.NewStringResponder(500, `{}`))

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallSuccess, result.Status)
	assert.Equal(t, model.ReasonRetryExhausted, result.Reason)
	assert.JSONEq(t, `{"score":0,"degraded":true}`, string(result.Response.Body))
}

func TestRouteDownstreamFatalNotRetried(t *testing.T) {
	bridge, ds := newMockBridge(t)
	stubHappyLookups(ds)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", mock.Anything).Return(nil, nil)

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://fraud.example.com/v1/score",
		httpmock.NewStringResponder(422, `{"error":"bad request"}`))

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallFailed, result.Status)
	assert.Equal(t, 422, result.Response.StatusCode)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestRouteDownstreamAttachesResolvedCredential(t *testing.T) {
	bridge, ds := newMockBridge(t)

	ds.On("IsTenantServiceAllowed", mock.Anything, "tn_1", "fraud-check", "/v1/score", "ACH").Return(true, nil)
	ds.On("GetServiceRoute", mock.Anything, "fraud-check", "tn_1").Return(&model.DownstreamService{
		ServiceName: "fraud-check",
		BaseURL:     "http://fraud.example.com",
		IsActive:    true,
	}, nil)
	callScope := model.DownstreamCallScope("tn_1", "fraud-check", "/v1/score")
	ds.On("GetActiveAuthConfiguration", mock.Anything, callScope).Return(&model.AuthLevelRecord{
		RecordID:             "auth_1",
		Scope:                callScope,
		AuthMethod:           model.AuthMethodAPIKey,
		CredentialRef:        "sk_test_123",
		IncludeClientHeaders: true,
		IsActive:             true,
	}, nil)
	ds.On("GetActiveResiliencyConfiguration", mock.Anything, "fraud-check", mock.Anything).Return(nil, nil)

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()

	var gotAPIKey, gotRequestID string
	httpmock.RegisterResponder("POST", "http://fraud.example.com/v1/score",
		func(req *http.Request) (*http.Response, error) {
			gotAPIKey = req.Header.Get("X-API-Key")
			gotRequestID = req.Header.Get("X-Request-Id")
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	result, err := bridge.RouteDownstream(context.Background(), testRequest())
	assert.NoError(t, err)
	assert.Equal(t, model.CallSuccess, result.Status)
	assert.Equal(t, "sk_test_123", gotAPIKey)
	assert.Equal(t, "req_1", gotRequestID, "client headers pass through when included")
}
