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
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/model"
)

const resiliencyColumns = `
	config_id, service_name, tenant_id, priority, is_active,
	circuit_breaker, retry, bulkhead, timeout, fallback, created_at, updated_at
`

func (d Datasource) RecordResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) (*model.ResiliencyConfiguration, error) {
	cfg.ConfigID = model.GenerateUUIDWithSuffix("rcfg")
	cfg.CreatedAt = time.Now()
	cfg.UpdatedAt = cfg.CreatedAt

	sections, err := marshalResiliencySections(cfg)
	if err != nil {
		return nil, err
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO resiliency_configurations
			(config_id, service_name, tenant_id, priority, is_active,
			 circuit_breaker, retry, bulkhead, timeout, fallback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, cfg.ConfigID, cfg.ServiceName, cfg.TenantID, cfg.Priority, cfg.IsActive,
		sections[0], sections[1], sections[2], sections[3], sections[4],
		cfg.CreatedAt, cfg.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Resiliency configuration already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create resiliency configuration", err)
	}

	return cfg, nil
}

// GetActiveResiliencyConfiguration fetches the highest-priority active row for
// the exact (service, tenant) pair. Ties on priority break on recency. It
// returns (nil, nil) when no row matches; the policy engine falls through to
// the per-service default and then to the safe defaults.
func (d Datasource) GetActiveResiliencyConfiguration(ctx context.Context, serviceName, tenantID string) (*model.ResiliencyConfiguration, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+resiliencyColumns+`
		FROM resiliency_configurations
		WHERE service_name = $1 AND tenant_id = $2 AND is_active
		ORDER BY priority DESC, updated_at DESC
		LIMIT 1
	`, serviceName, tenantID)

	cfg, err := scanResiliencyConfiguration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve resiliency configuration", err)
	}
	return cfg, nil
}

func (d Datasource) GetResiliencyConfiguration(ctx context.Context, configID string) (*model.ResiliencyConfiguration, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+resiliencyColumns+`
		FROM resiliency_configurations
		WHERE config_id = $1
	`, configID)

	cfg, err := scanResiliencyConfiguration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Resiliency configuration not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve resiliency configuration", err)
	}
	return cfg, nil
}

func (d Datasource) GetAllResiliencyConfigurations(ctx context.Context, limit, offset int) ([]*model.ResiliencyConfiguration, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+resiliencyColumns+`
		FROM resiliency_configurations
		ORDER BY service_name, tenant_id, priority DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve resiliency configurations", err)
	}
	defer rows.Close()

	configs := []*model.ResiliencyConfiguration{}
	for rows.Next() {
		cfg, err := scanResiliencyConfiguration(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan resiliency configuration", err)
		}
		configs = append(configs, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over resiliency configurations", err)
	}
	return configs, nil
}

func (d Datasource) UpdateResiliencyConfiguration(ctx context.Context, cfg *model.ResiliencyConfiguration) error {
	sections, err := marshalResiliencySections(cfg)
	if err != nil {
		return err
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE resiliency_configurations
		SET priority = $2, is_active = $3, circuit_breaker = $4, retry = $5,
		    bulkhead = $6, timeout = $7, fallback = $8, updated_at = NOW()
		WHERE config_id = $1
	`, cfg.ConfigID, cfg.Priority, cfg.IsActive,
		sections[0], sections[1], sections[2], sections[3], sections[4])
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update resiliency configuration", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update resiliency configuration", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Resiliency configuration not found", cfg.ConfigID)
	}
	return nil
}

func (d Datasource) DeleteResiliencyConfiguration(ctx context.Context, configID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM resiliency_configurations WHERE config_id = $1
	`, configID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete resiliency configuration", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete resiliency configuration", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Resiliency configuration not found", configID)
	}
	return nil
}

// marshalResiliencySections serializes the five policy sections in column
// order: circuit_breaker, retry, bulkhead, timeout, fallback. Nil sections
// become SQL NULLs rather than the JSON literal "null".
func marshalResiliencySections(cfg *model.ResiliencyConfiguration) ([5]interface{}, error) {
	var out [5]interface{}
	parts := []interface{}{cfg.CircuitBreaker, cfg.Retry, cfg.Bulkhead, cfg.Timeout, cfg.Fallback}
	nils := []bool{cfg.CircuitBreaker == nil, cfg.Retry == nil, cfg.Bulkhead == nil, cfg.Timeout == nil, cfg.Fallback == nil}
	for i, part := range parts {
		if nils[i] {
			out[i] = nil
			continue
		}
		data, err := json.Marshal(part)
		if err != nil {
			return out, apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal resiliency section", err)
		}
		out[i] = data
	}
	return out, nil
}

func scanResiliencyConfiguration(row rowScanner) (*model.ResiliencyConfiguration, error) {
	cfg := model.ResiliencyConfiguration{}
	var breakerJSON, retryJSON, bulkheadJSON, timeoutJSON, fallbackJSON []byte

	err := row.Scan(&cfg.ConfigID, &cfg.ServiceName, &cfg.TenantID, &cfg.Priority,
		&cfg.IsActive, &breakerJSON, &retryJSON, &bulkheadJSON, &timeoutJSON,
		&fallbackJSON, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(breakerJSON) > 0 {
		cfg.CircuitBreaker = &model.CircuitBreakerConfig{}
		if err := json.Unmarshal(breakerJSON, cfg.CircuitBreaker); err != nil {
			return nil, err
		}
	}
	if len(retryJSON) > 0 {
		cfg.Retry = &model.RetryConfig{}
		if err := json.Unmarshal(retryJSON, cfg.Retry); err != nil {
			return nil, err
		}
	}
	if len(bulkheadJSON) > 0 {
		cfg.Bulkhead = &model.BulkheadConfig{}
		if err := json.Unmarshal(bulkheadJSON, cfg.Bulkhead); err != nil {
			return nil, err
		}
	}
	if len(timeoutJSON) > 0 {
		cfg.Timeout = &model.TimeoutConfig{}
		if err := json.Unmarshal(timeoutJSON, cfg.Timeout); err != nil {
			return nil, err
		}
	}
	if len(fallbackJSON) > 0 {
		cfg.Fallback = &model.FallbackConfig{}
		if err := json.Unmarshal(fallbackJSON, cfg.Fallback); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
