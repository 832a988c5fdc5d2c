package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/model"
)

func TestGetActiveAuthConfigurationAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	scope := model.TenantScope("tn_1")

	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_configurations")).
		WithArgs(string(scope.Level), scope.Environment, scope.TenantID,
			scope.PaymentType, scope.ServiceType, scope.Endpoint).
		WillReturnError(sql.ErrNoRows)

	record, err := ds.GetActiveAuthConfiguration(context.Background(), scope)
	assert.NoError(t, err, "absence at a level is not an error")
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveAuthConfiguration(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	scope := model.TenantScope("tn_1")
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"record_id", "scope_level", "environment", "tenant_id", "payment_type",
		"service_type", "endpoint", "auth_method", "credential_ref",
		"include_client_headers", "header_overrides", "is_active", "created_at", "updated_at",
	}).AddRow("auth_1", string(model.ScopeTenant), "", "tn_1", "", "", "",
		string(model.AuthMethodAPIKey), "vault://tenants/tn_1/api-key", true,
		[]byte(`{"X-Channel":"gateway"}`), true, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_configurations")).
		WithArgs(string(scope.Level), scope.Environment, scope.TenantID,
			scope.PaymentType, scope.ServiceType, scope.Endpoint).
		WillReturnRows(rows)

	record, err := ds.GetActiveAuthConfiguration(context.Background(), scope)
	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, model.AuthMethodAPIKey, record.AuthMethod)
	assert.Equal(t, "vault://tenants/tn_1/api-key", record.CredentialRef)
	assert.Equal(t, "gateway", record.HeaderOverrides["X-Channel"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAuthConfigurationScopeConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_configurations")).
		WillReturnError(&mockPqError{})

	record := &model.AuthLevelRecord{
		Scope:      model.TenantScope("tn_1"),
		AuthMethod: model.AuthMethodJWT,
		IsActive:   true,
	}
	_, err = ds.RecordAuthConfiguration(context.Background(), record)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAuthConfigurationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE auth_configurations")).
		WithArgs("auth_missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.DeactivateAuthConfiguration(context.Background(), "auth_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// mockPqError stands in for a driver error so the insert path surfaces it.
type mockPqError struct{}

func (e *mockPqError) Error() string { return "duplicate key value violates unique constraint" }
