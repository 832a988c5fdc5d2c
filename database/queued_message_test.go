package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/model"
)

func TestClaimQueuedMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	claimedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusClaimed), claimedAt, "msg_1", string(model.StatusPending), string(model.StatusRetrying)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := ds.ClaimQueuedMessage(context.Background(), "msg_1", claimedAt)
	assert.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueuedMessageLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	claimedAt := time.Now()

	// Another scheduler claimed the row first: zero rows affected, no error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusClaimed), claimedAt, "msg_1", string(model.StatusPending), string(model.StatusRetrying)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := ds.ClaimQueuedMessage(context.Background(), "msg_1", claimedAt)
	assert.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionQueuedMessageGuarded(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusCancelled), "msg_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := ds.TransitionQueuedMessage(context.Background(), "msg_1",
		[]model.MessageStatus{model.StatusPending, model.StatusRetrying, model.StatusClaimed},
		model.StatusCancelled)
	assert.NoError(t, err)
	assert.False(t, moved, "terminal rows must not transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueuedMessageOutcomeGuardedOnClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	next := time.Now().Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusRetrying), 2, next, "connection refused", "msg_1", string(model.StatusClaimed)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := ds.UpdateQueuedMessageOutcome(context.Background(), "msg_1", model.StatusRetrying, 2, next, "connection refused")
	assert.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueuedMessageOutcomeRowMovedOn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	next := time.Now()

	// The row left CLAIMED while the replay ran (an operator cancel): the
	// guarded write touches nothing and reports it, without an error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusCompleted), 2, next, "", "msg_1", string(model.StatusClaimed)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := ds.UpdateQueuedMessageOutcome(context.Background(), "msg_1", model.StatusCompleted, 2, next, "")
	assert.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessageDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusRetrying), now, "msg_1", string(model.StatusPending), string(model.StatusRetrying)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := ds.MarkMessageDue(context.Background(), "msg_1", now)
	assert.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessageDueSkipsClaimedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusRetrying), now, "msg_1", string(model.StatusPending), string(model.StatusRetrying)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := ds.MarkMessageDue(context.Background(), "msg_1", now)
	assert.NoError(t, err)
	assert.False(t, moved, "rows mid-replay keep their claim")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDueMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"message_id", "service_name", "tenant_id", "endpoint", "payment_type",
		"payload", "headers", "reason", "status", "attempt_count", "next_retry_at",
		"created_at", "expires_at", "claimed_at", "last_error",
	}).AddRow("msg_1", "fraud-check", "tn_1", "/v1/score", "ACH",
		[]byte(`{"amount":"125.50"}`), []byte(`{"X-Request-Id":"abc"}`), "RETRIES_EXHAUSTED",
		string(model.StatusRetrying), 3, now.Add(-time.Minute), now.Add(-time.Hour),
		now.Add(23*time.Hour), nil, "connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("FROM queued_messages")).
		WithArgs(string(model.StatusPending), string(model.StatusRetrying), now, 500).
		WillReturnRows(rows)

	due, err := ds.GetDueMessages(context.Background(), now, 500)
	assert.NoError(t, err)
	assert.Len(t, due, 1)
	assert.Equal(t, "msg_1", due[0].MessageID)
	assert.Equal(t, 3, due[0].AttemptCount)
	assert.Equal(t, "abc", due[0].Headers["X-Request-Id"])
	assert.Nil(t, due[0].ClaimedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDueNow(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(now, "fraud-check", "tn_1", string(model.StatusPending), string(model.StatusRetrying)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	moved, err := ds.MarkDueNow(context.Background(), "tn_1", "fraud-check", now)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStaleClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queued_messages")).
		WithArgs(string(model.StatusRetrying), string(model.StatusClaimed), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	released, err := ds.ReleaseStaleClaims(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
