package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/model"
)

func TestGetActiveResiliencyConfigurationAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM resiliency_configurations")).
		WithArgs("fraud-check", "tn_1").
		WillReturnError(sql.ErrNoRows)

	cfg, err := ds.GetActiveResiliencyConfiguration(context.Background(), "fraud-check", "tn_1")
	assert.NoError(t, err)
	assert.Nil(t, cfg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveResiliencyConfigurationSections(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"config_id", "service_name", "tenant_id", "priority", "is_active",
		"circuit_breaker", "retry", "bulkhead", "timeout", "fallback",
		"created_at", "updated_at",
	}).AddRow("rcfg_1", "fraud-check", "tn_1", 10, true,
		[]byte(`{"failure_rate_threshold":0.5,"sliding_window_size":20,"minimum_calls":10,"open_state_duration_seconds":30,"half_open_trial_calls":2}`),
		[]byte(`{"max_attempts":4,"backoff_initial_ms":200,"backoff_multiplier":2}`),
		nil,
		[]byte(`{"call_timeout_ms":5000}`),
		[]byte(`{"strategy":"QUEUE_FOR_RETRY"}`),
		now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resiliency_configurations")).
		WithArgs("fraud-check", "tn_1").
		WillReturnRows(rows)

	cfg, err := ds.GetActiveResiliencyConfiguration(context.Background(), "fraud-check", "tn_1")
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, 0.5, cfg.CircuitBreaker.FailureRateThreshold)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Nil(t, cfg.Bulkhead, "NULL column stays a nil section")
	assert.Equal(t, model.FallbackQueueForRetry, cfg.Fallback.Strategy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
