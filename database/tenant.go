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
	"database/sql"
	"time"

	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/model"
)

// IsTenantServiceAllowed checks the access rules for the tenant against the
// service, endpoint and payment type. A rule with an empty endpoint or payment
// type matches any value; an explicit deny wins over a broader allow. No
// matching rule means no access.
func (d Datasource) IsTenantServiceAllowed(ctx context.Context, tenantID, serviceType, endpoint, paymentType string) (bool, error) {
	var allowed bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT is_allowed
		FROM tenant_service_access
		WHERE tenant_id = $1 AND service_type = $2
		  AND (endpoint = $3 OR endpoint = '')
		  AND (payment_type = $4 OR payment_type = '')
		ORDER BY (endpoint <> '') DESC, (payment_type <> '') DESC, is_allowed ASC
		LIMIT 1
	`, tenantID, serviceType, endpoint, paymentType).Scan(&allowed)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check tenant access", err)
	}
	return allowed, nil
}

func (d Datasource) RecordTenantAccess(ctx context.Context, tenantID, serviceType, endpoint, paymentType string, allowed bool) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO tenant_service_access (tenant_id, service_type, endpoint, payment_type, is_allowed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, service_type, endpoint, payment_type)
		DO UPDATE SET is_allowed = EXCLUDED.is_allowed
	`, tenantID, serviceType, endpoint, paymentType, allowed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record tenant access", err)
	}
	return nil
}

// GetServiceRoute fetches the route for the pair, preferring a tenant-specific
// row over the default (empty tenant) row. It returns (nil, nil) when the
// service is not declared at all.
func (d Datasource) GetServiceRoute(ctx context.Context, serviceName, tenantID string) (*model.DownstreamService, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT service_name, tenant_id, base_url, health_path, is_active, created_at
		FROM downstream_services
		WHERE service_name = $1 AND (tenant_id = $2 OR tenant_id = '') AND is_active
		ORDER BY (tenant_id <> '') DESC
		LIMIT 1
	`, serviceName, tenantID)

	svc := model.DownstreamService{}
	err := row.Scan(&svc.ServiceName, &svc.TenantID, &svc.BaseURL, &svc.HealthPath,
		&svc.IsActive, &svc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve service route", err)
	}
	return &svc, nil
}

func (d Datasource) RecordDownstreamService(ctx context.Context, svc *model.DownstreamService) (*model.DownstreamService, error) {
	svc.CreatedAt = time.Now()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO downstream_services (service_name, tenant_id, base_url, health_path, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_name, tenant_id)
		DO UPDATE SET base_url = EXCLUDED.base_url, health_path = EXCLUDED.health_path, is_active = EXCLUDED.is_active
	`, svc.ServiceName, svc.TenantID, svc.BaseURL, svc.HealthPath, svc.IsActive, svc.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record downstream service", err)
	}
	return svc, nil
}

func (d Datasource) GetDownstreamServices(ctx context.Context) ([]*model.DownstreamService, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT service_name, tenant_id, base_url, health_path, is_active, created_at
		FROM downstream_services
		ORDER BY service_name, tenant_id
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve downstream services", err)
	}
	defer rows.Close()

	services := []*model.DownstreamService{}
	for rows.Next() {
		svc := model.DownstreamService{}
		err := rows.Scan(&svc.ServiceName, &svc.TenantID, &svc.BaseURL, &svc.HealthPath,
			&svc.IsActive, &svc.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan downstream service", err)
		}
		services = append(services, &svc)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over downstream services", err)
	}
	return services, nil
}
