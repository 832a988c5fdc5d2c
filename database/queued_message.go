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

const queuedMessageColumns = `
	message_id, service_name, tenant_id, endpoint, payment_type, payload, headers,
	reason, status, attempt_count, next_retry_at, created_at, expires_at, claimed_at, last_error
`

// RecordQueuedMessage persists one message for later replay. The row is the
// source of truth; the asynq task scheduled alongside it is only a dispatch
// hint.
func (d Datasource) RecordQueuedMessage(ctx context.Context, msg *model.QueuedMessage) (*model.QueuedMessage, error) {
	if msg.MessageID == "" {
		msg.MessageID = model.GenerateUUIDWithSuffix("msg")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	headersJSON, err := json.Marshal(msg.Headers)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal message headers", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO queued_messages
			(message_id, service_name, tenant_id, endpoint, payment_type, payload, headers,
			 reason, status, attempt_count, next_retry_at, created_at, expires_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, msg.MessageID, msg.ServiceName, msg.TenantID, msg.Endpoint, msg.PaymentType,
		[]byte(msg.Payload), headersJSON, msg.Reason, msg.Status, msg.AttemptCount,
		msg.NextRetryAt, msg.CreatedAt, msg.ExpiresAt, msg.LastError)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Message has already been queued", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to queue message", err)
	}

	return msg, nil
}

func (d Datasource) GetQueuedMessage(ctx context.Context, messageID string) (*model.QueuedMessage, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+queuedMessageColumns+`
		FROM queued_messages
		WHERE message_id = $1
	`, messageID)

	msg, err := scanQueuedMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Queued message not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve queued message", err)
	}
	return msg, nil
}

// GetQueuedMessages lists messages filtered by tenant, service and status.
// Empty filter values match everything.
func (d Datasource) GetQueuedMessages(ctx context.Context, tenantID, serviceName string, status model.MessageStatus, limit, offset int) ([]*model.QueuedMessage, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+queuedMessageColumns+`
		FROM queued_messages
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR service_name = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, tenantID, serviceName, string(status), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve queued messages", err)
	}
	defer rows.Close()

	messages := []*model.QueuedMessage{}
	for rows.Next() {
		msg, err := scanQueuedMessage(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan queued message", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over queued messages", err)
	}
	return messages, nil
}

// GetDueMessages returns replayable messages whose next_retry_at has passed,
// oldest due first so starvation cannot occur under a backlog.
func (d Datasource) GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*model.QueuedMessage, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+queuedMessageColumns+`
		FROM queued_messages
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY next_retry_at ASC
		LIMIT $4
	`, model.StatusPending, model.StatusRetrying, now, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due messages", err)
	}
	defer rows.Close()

	messages := []*model.QueuedMessage{}
	for rows.Next() {
		msg, err := scanQueuedMessage(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan due message", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over due messages", err)
	}
	return messages, nil
}

// ClaimQueuedMessage moves a replayable message to CLAIMED. The compare-and-set
// on status makes the claim exclusive: when two schedulers race, exactly one
// sees a row affected.
func (d Datasource) ClaimQueuedMessage(ctx context.Context, messageID string, claimedAt time.Time) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, claimed_at = $2
		WHERE message_id = $3 AND status IN ($4, $5)
	`, model.StatusClaimed, claimedAt, messageID, model.StatusPending, model.StatusRetrying)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim queued message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim queued message", err)
	}
	return affected == 1, nil
}

// ReleaseClaim returns a CLAIMED message to the given status and clears the
// claim timestamp.
func (d Datasource) ReleaseClaim(ctx context.Context, messageID string, status model.MessageStatus) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, claimed_at = NULL
		WHERE message_id = $2 AND status = $3
	`, status, messageID, model.StatusClaimed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release claim", err)
	}
	return nil
}

// UpdateQueuedMessageOutcome records the result of one replay attempt and
// clears the claim. The write is guarded on CLAIMED: a row an operator moved
// while the replay was in flight (a cancel, most likely) stays where the
// operator put it, and the caller learns the write did not apply.
func (d Datasource) UpdateQueuedMessageOutcome(ctx context.Context, messageID string, status model.MessageStatus, attemptCount int, nextRetryAt time.Time, lastError string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, attempt_count = $2, next_retry_at = $3, last_error = $4, claimed_at = NULL
		WHERE message_id = $5 AND status = $6
	`, status, attemptCount, nextRetryAt, lastError, messageID, model.StatusClaimed)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update queued message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update queued message", err)
	}
	return affected == 1, nil
}

// MarkMessageDue pulls one replayable message's next retry forward to now. The
// guard on PENDING/RETRYING keeps it off rows that are mid-replay or terminal.
func (d Datasource) MarkMessageDue(ctx context.Context, messageID string, now time.Time) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, next_retry_at = $2
		WHERE message_id = $3 AND status IN ($4, $5)
	`, model.StatusRetrying, now, messageID, model.StatusPending, model.StatusRetrying)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark message due", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark message due", err)
	}
	return affected == 1, nil
}

// TransitionQueuedMessage performs a guarded status change. It reports whether
// the row moved, so callers can distinguish "already in a terminal state" from
// success without a second read.
func (d Datasource) TransitionQueuedMessage(ctx context.Context, messageID string, from []model.MessageStatus, to model.MessageStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, claimed_at = NULL
		WHERE message_id = $2 AND status = ANY($3)
	`, to, messageID, pq.Array(states))
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition queued message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition queued message", err)
	}
	return affected == 1, nil
}

// SweepExpiredMessages marks every non-terminal message past its expiry as
// EXPIRED and returns how many rows moved.
func (d Datasource) SweepExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, claimed_at = NULL
		WHERE status IN ($2, $3, $4) AND expires_at <= $5
	`, model.StatusExpired, model.StatusPending, model.StatusRetrying, model.StatusClaimed, now)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sweep expired messages", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sweep expired messages", err)
	}
	return affected, nil
}

// ReleaseStaleClaims returns CLAIMED messages whose claim predates the cutoff
// to RETRYING. A claim that old belongs to a worker that died mid-replay.
func (d Datasource) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = $1, claimed_at = NULL
		WHERE status = $2 AND claimed_at IS NOT NULL AND claimed_at <= $3
	`, model.StatusRetrying, model.StatusClaimed, olderThan)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release stale claims", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release stale claims", err)
	}
	return affected, nil
}

// MarkDueNow pulls every replayable message for the pair forward so the next
// scan drains the backlog immediately. The self-healing monitor calls it when
// a service recovers. Empty tenant matches all tenants.
func (d Datasource) MarkDueNow(ctx context.Context, tenantID, serviceName string, now time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE queued_messages
		SET next_retry_at = $1
		WHERE service_name = $2
		  AND ($3 = '' OR tenant_id = $3)
		  AND status IN ($4, $5)
		  AND next_retry_at > $1
	`, now, serviceName, tenantID, model.StatusPending, model.StatusRetrying)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark messages due", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark messages due", err)
	}
	return affected, nil
}

func scanQueuedMessage(row rowScanner) (*model.QueuedMessage, error) {
	msg := model.QueuedMessage{}
	var payload, headersJSON []byte
	var reason, lastError sql.NullString
	var claimedAt sql.NullTime

	err := row.Scan(&msg.MessageID, &msg.ServiceName, &msg.TenantID, &msg.Endpoint,
		&msg.PaymentType, &payload, &headersJSON, &reason, &msg.Status,
		&msg.AttemptCount, &msg.NextRetryAt, &msg.CreatedAt, &msg.ExpiresAt,
		&claimedAt, &lastError)
	if err != nil {
		return nil, err
	}

	msg.Payload = payload
	msg.Reason = reason.String
	msg.LastError = lastError.String
	if claimedAt.Valid {
		msg.ClaimedAt = &claimedAt.Time
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &msg.Headers); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}
