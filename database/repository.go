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

package database

import (
	"context"
	"time"

	"github.com/paybridge/paybridge/model"
)

// IDataSource defines the interface for data source operations, grouping
// related functionalities.
type IDataSource interface {
	authConfig       // Four-level authentication configuration records
	resiliencyConfig // Resiliency policies per (service, tenant)
	queuedMessage    // Durable replay queue rows
	tenant           // Tenant access rules and declared downstream services
}

// authConfig defines methods for the four-level authentication records read by
// the resolver and managed through the configuration API.
type authConfig interface {
	RecordAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) (*model.AuthLevelRecord, error)
	GetActiveAuthConfiguration(ctx context.Context, scope model.ScopeKey) (*model.AuthLevelRecord, error) // Returns nil when no active record exists at the scope
	GetAuthConfiguration(ctx context.Context, recordID string) (*model.AuthLevelRecord, error)
	GetAuthConfigurations(ctx context.Context, tenantID string, limit, offset int) ([]*model.AuthLevelRecord, error)
	UpdateAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) error
	DeactivateAuthConfiguration(ctx context.Context, recordID string) error
}

// resiliencyConfig defines methods for stored resiliency policies.
type resiliencyConfig interface {
	RecordResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) (*model.ResiliencyConfiguration, error)
	GetActiveResiliencyConfiguration(ctx context.Context, serviceName, tenantID string) (*model.ResiliencyConfiguration, error) // Highest-priority active row for the exact (service, tenant); nil when absent
	GetResiliencyConfiguration(ctx context.Context, configID string) (*model.ResiliencyConfiguration, error)
	GetAllResiliencyConfigurations(ctx context.Context, limit, offset int) ([]*model.ResiliencyConfiguration, error)
	UpdateResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) error
	DeleteResiliencyConfiguration(ctx context.Context, configID string) error
}

// queuedMessage defines methods for the durable replay queue. Status updates
// are compare-and-set so horizontally scaled schedulers never double-process
// a message.
type queuedMessage interface {
	RecordQueuedMessage(ctx context.Context, msg *model.QueuedMessage) (*model.QueuedMessage, error)
	GetQueuedMessage(ctx context.Context, messageID string) (*model.QueuedMessage, error)
	GetQueuedMessages(ctx context.Context, tenantID, serviceName string, status model.MessageStatus, limit, offset int) ([]*model.QueuedMessage, error)
	GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*model.QueuedMessage, error) // Oldest due first
	ClaimQueuedMessage(ctx context.Context, messageID string, claimedAt time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, messageID string, status model.MessageStatus) error
	UpdateQueuedMessageOutcome(ctx context.Context, messageID string, status model.MessageStatus, attemptCount int, nextRetryAt time.Time, lastError string) (bool, error) // Guarded on CLAIMED; false means the row moved on
	TransitionQueuedMessage(ctx context.Context, messageID string, from []model.MessageStatus, to model.MessageStatus) (bool, error)
	MarkMessageDue(ctx context.Context, messageID string, now time.Time) (bool, error) // Single-message retry-now, guarded on PENDING/RETRYING
	SweepExpiredMessages(ctx context.Context, now time.Time) (int64, error)
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
	MarkDueNow(ctx context.Context, tenantID, serviceName string, now time.Time) (int64, error) // Pulls the whole backlog forward for bulk recovery
}

// tenant defines methods for tenant access rules and the registry of declared
// downstream services.
type tenant interface {
	IsTenantServiceAllowed(ctx context.Context, tenantID, serviceType, endpoint, paymentType string) (bool, error)
	RecordTenantAccess(ctx context.Context, tenantID, serviceType, endpoint, paymentType string, allowed bool) error
	GetServiceRoute(ctx context.Context, serviceName, tenantID string) (*model.DownstreamService, error) // Tenant-specific route, else the default route, else nil
	RecordDownstreamService(ctx context.Context, svc *model.DownstreamService) (*model.DownstreamService, error)
	GetDownstreamServices(ctx context.Context) ([]*model.DownstreamService, error)
}
