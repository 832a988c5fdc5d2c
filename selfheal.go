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
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/internal/notification"
	"github.com/paybridge/paybridge/internal/request"
	"github.com/paybridge/paybridge/model"
)

// SelfHealingMonitor probes declared downstream services and, when one proves
// healthy again after an outage, pulls its queued backlog forward and resets
// its breakers so recovery does not wait out the scheduled backoffs.
type SelfHealingMonitor struct {
	bridge *PayBridge

	mu     sync.Mutex
	health map[string]*model.ServiceHealth
}

func NewSelfHealingMonitor(bridge *PayBridge) *SelfHealingMonitor {
	return &SelfHealingMonitor{
		bridge: bridge,
		health: make(map[string]*model.ServiceHealth),
	}
}

// Start runs the probe loop until the context is cancelled.
func (m *SelfHealingMonitor) Start(ctx context.Context) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cnf.SelfHealing.ProbeIntervalSec) * time.Second)
	defer ticker.Stop()

	logrus.Info("self-healing monitor started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("self-healing monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.ProbeAll(ctx, cnf)
		}
	}
}

// ProbeAll probes every active declared service that exposes a health path.
func (m *SelfHealingMonitor) ProbeAll(ctx context.Context, cnf *config.Configuration) {
	services, err := m.bridge.datasource.GetDownstreamServices(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to list downstream services for probing")
		return
	}

	for _, svc := range services {
		if !svc.IsActive || svc.HealthPath == "" {
			continue
		}
		m.probe(ctx, cnf, svc)
	}
}

func (m *SelfHealingMonitor) probe(ctx context.Context, cnf *config.Configuration, svc *model.DownstreamService) {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(cnf.SelfHealing.ProbeTimeoutMs)*time.Millisecond)
	defer cancel()

	status, _, err := request.Do(probeCtx, http.MethodGet, joinURL(svc.BaseURL, svc.HealthPath), nil, nil)
	healthy := err == nil && status >= 200 && status < 300

	if healthy {
		m.recordHealthy(ctx, cnf, svc)
	} else {
		m.recordUnhealthy(svc, status, err)
	}
}

func (m *SelfHealingMonitor) recordHealthy(ctx context.Context, cnf *config.Configuration, svc *model.DownstreamService) {
	m.mu.Lock()
	key := breakerKey(svc.ServiceName, svc.TenantID)
	entry, ok := m.health[key]
	if !ok {
		entry = &model.ServiceHealth{ServiceName: svc.ServiceName, TenantID: svc.TenantID, Healthy: true}
		m.health[key] = entry
	}
	wasUnhealthy := !entry.Healthy
	entry.ConsecutiveHealthy++
	entry.LastProbeAt = time.Now()
	entry.LastError = ""

	recovered := wasUnhealthy && entry.ConsecutiveHealthy >= cnf.SelfHealing.HealthyThreshold
	if recovered {
		entry.Healthy = true
	}
	m.mu.Unlock()

	if recovered {
		m.onRecovery(ctx, svc)
	}
}

func (m *SelfHealingMonitor) recordUnhealthy(svc *model.DownstreamService, status int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := breakerKey(svc.ServiceName, svc.TenantID)
	entry, ok := m.health[key]
	if !ok {
		entry = &model.ServiceHealth{ServiceName: svc.ServiceName, TenantID: svc.TenantID}
		m.health[key] = entry
	}
	if entry.Healthy {
		logrus.WithFields(logrus.Fields{
			"service": svc.ServiceName,
			"tenant":  svc.TenantID,
			"status":  status,
		}).Warn("downstream service became unhealthy")
	}
	entry.Healthy = false
	entry.ConsecutiveHealthy = 0
	entry.LastProbeAt = time.Now()
	if cause != nil {
		entry.LastError = cause.Error()
	} else {
		entry.LastError = http.StatusText(status)
	}
}

// onRecovery pulls the backlog forward and closes the breaker so live traffic
// and replays resume immediately.
func (m *SelfHealingMonitor) onRecovery(ctx context.Context, svc *model.DownstreamService) {
	moved, err := m.bridge.datasource.MarkDueNow(ctx, svc.TenantID, svc.ServiceName, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("service", svc.ServiceName).Error("failed to pull backlog forward on recovery")
		notification.NotifyError(err)
	}

	if breaker := m.bridge.breakers.Lookup(svc.ServiceName, svc.TenantID); breaker != nil {
		breaker.Reset()
	}

	logrus.WithFields(logrus.Fields{
		"service": svc.ServiceName,
		"tenant":  svc.TenantID,
		"backlog": moved,
	}).Info("downstream service recovered, backlog released")
}

// Health reports the monitor's current view of every probed service.
func (m *SelfHealingMonitor) Health() []model.ServiceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ServiceHealth, 0, len(m.health))
	for _, entry := range m.health {
		out = append(out, *entry)
	}
	return out
}
