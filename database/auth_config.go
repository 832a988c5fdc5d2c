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

const authConfigColumns = `
	record_id, scope_level, environment, tenant_id, payment_type, service_type, endpoint,
	auth_method, credential_ref, include_client_headers, header_overrides, is_active,
	created_at, updated_at
`

// RecordAuthConfiguration inserts a new authentication record at its scope.
// The partial unique index rejects a second active record for the same scope.
func (d Datasource) RecordAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) (*model.AuthLevelRecord, error) {
	record.RecordID = model.GenerateUUIDWithSuffix("auth")
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt

	overridesJSON, err := json.Marshal(record.HeaderOverrides)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal header overrides", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO auth_configurations
			(record_id, scope_level, environment, tenant_id, payment_type, service_type, endpoint,
			 auth_method, credential_ref, include_client_headers, header_overrides, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, record.RecordID, record.Scope.Level, record.Scope.Environment, record.Scope.TenantID,
		record.Scope.PaymentType, record.Scope.ServiceType, record.Scope.Endpoint,
		record.AuthMethod, record.CredentialRef, record.IncludeClientHeaders, overridesJSON,
		record.IsActive, record.CreatedAt, record.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "An active record already exists for this scope", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create auth configuration", err)
	}

	return record, nil
}

// GetActiveAuthConfiguration fetches the single active record at the exact
// scope key. It returns (nil, nil) when no active record exists: absence is
// not an error at any level of the hierarchy.
func (d Datasource) GetActiveAuthConfiguration(ctx context.Context, scope model.ScopeKey) (*model.AuthLevelRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+authConfigColumns+`
		FROM auth_configurations
		WHERE scope_level = $1 AND environment = $2 AND tenant_id = $3
		  AND payment_type = $4 AND service_type = $5 AND endpoint = $6
		  AND is_active
	`, scope.Level, scope.Environment, scope.TenantID, scope.PaymentType, scope.ServiceType, scope.Endpoint)

	record, err := scanAuthConfiguration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve auth configuration", err)
	}
	return record, nil
}

func (d Datasource) GetAuthConfiguration(ctx context.Context, recordID string) (*model.AuthLevelRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+authConfigColumns+`
		FROM auth_configurations
		WHERE record_id = $1
	`, recordID)

	record, err := scanAuthConfiguration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Auth configuration not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve auth configuration", err)
	}
	return record, nil
}

func (d Datasource) GetAuthConfigurations(ctx context.Context, tenantID string, limit, offset int) ([]*model.AuthLevelRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+authConfigColumns+`
		FROM auth_configurations
		WHERE tenant_id = $1 OR scope_level = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, model.ScopeClearingSystem, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve auth configurations", err)
	}
	defer rows.Close()

	records := []*model.AuthLevelRecord{}
	for rows.Next() {
		record, err := scanAuthConfiguration(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan auth configuration", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over auth configurations", err)
	}
	return records, nil
}

func (d Datasource) UpdateAuthConfiguration(ctx context.Context, record *model.AuthLevelRecord) error {
	overridesJSON, err := json.Marshal(record.HeaderOverrides)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal header overrides", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE auth_configurations
		SET auth_method = $2, credential_ref = $3, include_client_headers = $4,
		    header_overrides = $5, is_active = $6, updated_at = NOW()
		WHERE record_id = $1
	`, record.RecordID, record.AuthMethod, record.CredentialRef, record.IncludeClientHeaders,
		overridesJSON, record.IsActive)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "An active record already exists for this scope", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update auth configuration", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update auth configuration", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Auth configuration not found", record.RecordID)
	}
	return nil
}

func (d Datasource) DeactivateAuthConfiguration(ctx context.Context, recordID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE auth_configurations
		SET is_active = FALSE, updated_at = NOW()
		WHERE record_id = $1
	`, recordID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to deactivate auth configuration", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to deactivate auth configuration", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Auth configuration not found", recordID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuthConfiguration(row rowScanner) (*model.AuthLevelRecord, error) {
	record := model.AuthLevelRecord{}
	var overridesJSON []byte
	var credentialRef sql.NullString

	err := row.Scan(&record.RecordID, &record.Scope.Level, &record.Scope.Environment,
		&record.Scope.TenantID, &record.Scope.PaymentType, &record.Scope.ServiceType,
		&record.Scope.Endpoint, &record.AuthMethod, &credentialRef,
		&record.IncludeClientHeaders, &overridesJSON, &record.IsActive,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.CredentialRef = credentialRef.String
	if len(overridesJSON) > 0 {
		if err := json.Unmarshal(overridesJSON, &record.HeaderOverrides); err != nil {
			return nil, err
		}
	}
	return &record, nil
}
