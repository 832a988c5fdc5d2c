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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/paybridge/paybridge/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Auth configuration methods

func (m *MockDataSource) RecordAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) (*model.AuthLevelRecord, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthLevelRecord), args.Error(1)
}

func (m *MockDataSource) GetActiveAuthConfiguration(ctx context.Context, scope model.ScopeKey) (*model.AuthLevelRecord, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthLevelRecord), args.Error(1)
}

func (m *MockDataSource) GetAuthConfiguration(ctx context.Context, recordID string) (*model.AuthLevelRecord, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuthLevelRecord), args.Error(1)
}

func (m *MockDataSource) GetAuthConfigurations(ctx context.Context, tenantID string, limit, offset int) ([]*model.AuthLevelRecord, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AuthLevelRecord), args.Error(1)
}

func (m *MockDataSource) UpdateAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) DeactivateAuthConfiguration(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

// Resiliency configuration methods

func (m *MockDataSource) RecordResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) (*model.ResiliencyConfiguration, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResiliencyConfiguration), args.Error(1)
}

func (m *MockDataSource) GetActiveResiliencyConfiguration(ctx context.Context, serviceName, tenantID string) (*model.ResiliencyConfiguration, error) {
	args := m.Called(ctx, serviceName, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResiliencyConfiguration), args.Error(1)
}

func (m *MockDataSource) GetResiliencyConfiguration(ctx context.Context, configID string) (*model.ResiliencyConfiguration, error) {
	args := m.Called(ctx, configID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResiliencyConfiguration), args.Error(1)
}

func (m *MockDataSource) GetAllResiliencyConfigurations(ctx context.Context, limit, offset int) ([]*model.ResiliencyConfiguration, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ResiliencyConfiguration), args.Error(1)
}

func (m *MockDataSource) UpdateResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockDataSource) DeleteResiliencyConfiguration(ctx context.Context, configID string) error {
	args := m.Called(ctx, configID)
	return args.Error(0)
}

// Queued message methods

func (m *MockDataSource) RecordQueuedMessage(ctx context.Context, msg *model.QueuedMessage) (*model.QueuedMessage, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueuedMessage), args.Error(1)
}

func (m *MockDataSource) GetQueuedMessage(ctx context.Context, messageID string) (*model.QueuedMessage, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueuedMessage), args.Error(1)
}

func (m *MockDataSource) GetQueuedMessages(ctx context.Context, tenantID, serviceName string, status model.MessageStatus, limit, offset int) ([]*model.QueuedMessage, error) {
	args := m.Called(ctx, tenantID, serviceName, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QueuedMessage), args.Error(1)
}

func (m *MockDataSource) GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*model.QueuedMessage, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QueuedMessage), args.Error(1)
}

func (m *MockDataSource) ClaimQueuedMessage(ctx context.Context, messageID string, claimedAt time.Time) (bool, error) {
	args := m.Called(ctx, messageID, claimedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ReleaseClaim(ctx context.Context, messageID string, status model.MessageStatus) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *MockDataSource) UpdateQueuedMessageOutcome(ctx context.Context, messageID string, status model.MessageStatus, attemptCount int, nextRetryAt time.Time, lastError string) (bool, error) {
	args := m.Called(ctx, messageID, status, attemptCount, nextRetryAt, lastError)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkMessageDue(ctx context.Context, messageID string, now time.Time) (bool, error) {
	args := m.Called(ctx, messageID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) TransitionQueuedMessage(ctx context.Context, messageID string, from []model.MessageStatus, to model.MessageStatus) (bool, error) {
	args := m.Called(ctx, messageID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SweepExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) MarkDueNow(ctx context.Context, tenantID, serviceName string, now time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, serviceName, now)
	return args.Get(0).(int64), args.Error(1)
}

// Tenant methods

func (m *MockDataSource) IsTenantServiceAllowed(ctx context.Context, tenantID, serviceType, endpoint, paymentType string) (bool, error) {
	args := m.Called(ctx, tenantID, serviceType, endpoint, paymentType)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordTenantAccess(ctx context.Context, tenantID, serviceType, endpoint, paymentType string, allowed bool) error {
	args := m.Called(ctx, tenantID, serviceType, endpoint, paymentType, allowed)
	return args.Error(0)
}

func (m *MockDataSource) GetServiceRoute(ctx context.Context, serviceName, tenantID string) (*model.DownstreamService, error) {
	args := m.Called(ctx, serviceName, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DownstreamService), args.Error(1)
}

func (m *MockDataSource) RecordDownstreamService(ctx context.Context, svc *model.DownstreamService) (*model.DownstreamService, error) {
	args := m.Called(ctx, svc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DownstreamService), args.Error(1)
}

func (m *MockDataSource) GetDownstreamServices(ctx context.Context) ([]*model.DownstreamService, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DownstreamService), args.Error(1)
}
