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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/model"
)

// GetQueuedMessage fetches one message by id.
func (p *PayBridge) GetQueuedMessage(ctx context.Context, messageID string) (*model.QueuedMessage, error) {
	return p.datasource.GetQueuedMessage(ctx, messageID)
}

// GetQueuedMessages lists messages by tenant, service and status filters.
func (p *PayBridge) GetQueuedMessages(ctx context.Context, tenantID, serviceName string, status model.MessageStatus, limit, offset int) ([]*model.QueuedMessage, error) {
	return p.datasource.GetQueuedMessages(ctx, tenantID, serviceName, status, limit, offset)
}

// CancelQueuedMessage cancels a message that has not reached a terminal state.
// The guarded transition makes cancellation race-safe against a concurrent
// replay: a message that completed first stays completed.
func (p *PayBridge) CancelQueuedMessage(ctx context.Context, messageID string) (*model.QueuedMessage, error) {
	moved, err := p.datasource.TransitionQueuedMessage(ctx, messageID,
		[]model.MessageStatus{model.StatusPending, model.StatusRetrying, model.StatusClaimed}, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !moved {
		msg, err := p.datasource.GetQueuedMessage(ctx, messageID)
		if err != nil {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Message is already in a terminal state", msg.Status)
	}

	if err := p.queue.CancelReplay(messageID); err != nil {
		logrus.WithError(err).WithField("message", messageID).Warn("failed to remove dispatched replay task")
	}
	return p.datasource.GetQueuedMessage(ctx, messageID)
}

// RetryMessageNow pulls one message's next replay forward to now. The guarded
// transition leaves terminal rows and rows mid-replay alone.
func (p *PayBridge) RetryMessageNow(ctx context.Context, messageID string) (*model.QueuedMessage, error) {
	msg, err := p.datasource.GetQueuedMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status.IsTerminal() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Message is already in a terminal state", msg.Status)
	}

	now := time.Now()
	moved, err := p.datasource.MarkMessageDue(ctx, messageID, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Message is being replayed right now", msg.Status)
	}

	msg.Status = model.StatusRetrying
	msg.NextRetryAt = now
	if err := p.queue.EnqueueReplay(ctx, msg); err != nil {
		logrus.WithError(err).WithField("message", messageID).Warn("failed to enqueue immediate replay, scan will pick it up")
	}
	return msg, nil
}

// ReprocessAll pulls the whole replayable backlog for a (service, tenant)
// forward to now. An empty tenant covers every tenant of the service.
func (p *PayBridge) ReprocessAll(ctx context.Context, tenantID, serviceName string) (int64, error) {
	moved, err := p.datasource.MarkDueNow(ctx, tenantID, serviceName, time.Now())
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"service": serviceName,
		"tenant":  tenantID,
		"count":   moved,
	}).Info("queued backlog pulled forward for reprocessing")
	return moved, nil
}
