package paybridge

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/internal/request"
	"github.com/paybridge/paybridge/model"
)

func TestSelfHealingRecoveryReleasesBacklog(t *testing.T) {
	bridge, ds := newMockBridge(t)
	monitor := NewSelfHealingMonitor(bridge)

	cnf, err := config.Fetch()
	assert.NoError(t, err)

	svc := &model.DownstreamService{
		ServiceName: "fraud-check",
		TenantID:    "tn_1",
		BaseURL:     "http://fraud.example.com",
		HealthPath:  "/healthz",
		IsActive:    true,
	}
	ds.On("GetDownstreamServices", mock.Anything).Return([]*model.DownstreamService{svc}, nil)
	ds.On("MarkDueNow", mock.Anything, "tn_1", "fraud-check", mock.Anything).Return(int64(7), nil)

	breakerCfg := &model.CircuitBreakerConfig{
		FailureRateThreshold:     0.5,
		SlidingWindowSize:        10,
		MinimumCalls:             2,
		OpenStateDurationSeconds: 600,
		HalfOpenTrialCalls:       1,
	}
	breaker := bridge.breakers.Get("fraud-check", "tn_1", breakerCfg)
	breaker.ForceOpen()

	httpmock.ActivateNonDefault(request.HTTPClient)
	defer httpmock.DeactivateAndReset()

	// Down: probes fail.
	httpmock.RegisterResponder("GET", "http://fraud.example.com/healthz",
		httpmock.NewStringResponder(503, `{}`))
	monitor.ProbeAll(context.Background(), cnf)

	health := monitor.Health()
	assert.Len(t, health, 1)
	assert.False(t, health[0].Healthy)

	// Back up: recovery only fires after the healthy threshold.
	httpmock.RegisterResponder("GET", "http://fraud.example.com/healthz",
		httpmock.NewStringResponder(200, `{}`))
	for i := 0; i < cnf.SelfHealing.HealthyThreshold; i++ {
		monitor.ProbeAll(context.Background(), cnf)
	}

	health = monitor.Health()
	assert.True(t, health[0].Healthy)
	assert.Equal(t, model.CircuitClosed, breaker.State(), "recovery closes the breaker")
	ds.AssertCalled(t, "MarkDueNow", mock.Anything, "tn_1", "fraud-check", mock.Anything)
	ds.AssertNumberOfCalls(t, "MarkDueNow", 1)
}

func TestSelfHealingSkipsServicesWithoutHealthPath(t *testing.T) {
	bridge, ds := newMockBridge(t)
	monitor := NewSelfHealingMonitor(bridge)

	cnf, err := config.Fetch()
	assert.NoError(t, err)

	ds.On("GetDownstreamServices", mock.Anything).Return([]*model.DownstreamService{
		{ServiceName: "ledger", BaseURL: "http://ledger.example.com", IsActive: true},
		{ServiceName: "old-gateway", BaseURL: "http://old.example.com", HealthPath: "/healthz", IsActive: false},
	}, nil)

	monitor.ProbeAll(context.Background(), cnf)
	assert.Empty(t, monitor.Health(), "unprobeable services are never tracked")
}
