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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/config"
	redlock "github.com/paybridge/paybridge/internal/lock"
	"github.com/paybridge/paybridge/model"
)

const schedulerLockKey = "queue_scheduler_scan_lock"

// QueueScheduler drives the durable replay queue. Asynq tasks are the fast
// path; the periodic scan is the safety net that replays anything the broker
// lost, releases stale claims, and expires old messages. A redis lock keeps
// concurrent instances from running overlapping scans.
type QueueScheduler struct {
	bridge *PayBridge
}

func NewQueueScheduler(bridge *PayBridge) *QueueScheduler {
	return &QueueScheduler{bridge: bridge}
}

// Start runs the scan loop until the context is cancelled.
func (s *QueueScheduler) Start(ctx context.Context) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cnf.Queue.ScanIntervalSec) * time.Second)
	defer ticker.Stop()

	logrus.Info("queue scheduler started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("queue scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runScan(ctx, cnf)
		}
	}
}

// runScan performs one guarded scan pass under the distributed lock.
func (s *QueueScheduler) runScan(ctx context.Context, cnf *config.Configuration) {
	budget := time.Duration(cnf.Queue.ScanBudgetSec) * time.Second
	locker := redlock.NewLocker(s.bridge.redis, schedulerLockKey, uuid.New().String())
	if err := locker.Lock(ctx, budget); err != nil {
		// Another instance holds the scan; nothing to do.
		return
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).Warn("failed to release scheduler scan lock")
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := s.Scan(scanCtx, cnf); err != nil {
		logrus.WithError(err).Error("queue scan failed")
	}
}

// Scan performs one maintenance pass: expire, release stale claims, then
// replay everything due, bounded by the batch size and worker pool.
func (s *QueueScheduler) Scan(ctx context.Context, cnf *config.Configuration) error {
	now := time.Now()

	expired, err := s.bridge.datasource.SweepExpiredMessages(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		logrus.WithField("count", expired).Info("expired queued messages")
	}

	staleCutoff := now.Add(-time.Duration(cnf.Queue.ClaimTimeoutSec) * time.Second)
	released, err := s.bridge.datasource.ReleaseStaleClaims(ctx, staleCutoff)
	if err != nil {
		return err
	}
	if released > 0 {
		logrus.WithField("count", released).Warn("released stale message claims")
	}

	due, err := s.bridge.datasource.GetDueMessages(ctx, now, cnf.Queue.ScanBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	logrus.WithField("count", len(due)).Info("processing due queued messages")

	// Bounded worker pool; each worker owns one message end to end.
	sem := make(chan struct{}, cnf.Queue.MaxWorkers)
	done := make(chan struct{}, len(due))
	for _, msg := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sem <- struct{}{}:
		}
		go func(m *model.QueuedMessage) {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			s.ProcessMessage(ctx, m)
		}(msg)
	}
	for range due {
		<-done
	}
	return nil
}

// ProcessMessage claims and replays one due message. Losing the claim race is
// normal under horizontal scale and exits quietly.
func (s *QueueScheduler) ProcessMessage(ctx context.Context, msg *model.QueuedMessage) {
	cnf, err := config.Fetch()
	if err != nil {
		logrus.WithError(err).Error("failed to fetch config for message processing")
		return
	}

	now := time.Now()
	if msg.IsExpired(now) {
		if _, err := s.bridge.datasource.TransitionQueuedMessage(ctx, msg.MessageID,
			[]model.MessageStatus{model.StatusPending, model.StatusRetrying}, model.StatusExpired); err != nil {
			logrus.WithError(err).WithField("message", msg.MessageID).Error("failed to expire message")
		}
		return
	}

	claimed, err := s.bridge.datasource.ClaimQueuedMessage(ctx, msg.MessageID, now)
	if err != nil {
		logrus.WithError(err).WithField("message", msg.MessageID).Error("failed to claim message")
		return
	}
	if !claimed {
		return
	}

	result := s.bridge.ReplayMessage(ctx, msg)
	attempts := msg.AttemptCount + 1

	switch {
	case result.Outcome == model.OutcomeSuccess:
		applied, err := s.bridge.datasource.UpdateQueuedMessageOutcome(ctx, msg.MessageID, model.StatusCompleted, attempts, msg.NextRetryAt, "")
		if err != nil {
			logrus.WithError(err).WithField("message", msg.MessageID).Error("failed to complete message")
			return
		}
		if !applied {
			// The row left CLAIMED while the replay ran, a cancel most
			// likely. That state wins; the attempt's outcome is discarded.
			logrus.WithField("message", msg.MessageID).Info("message moved on during replay, leaving its state")
			return
		}
		logrus.WithFields(logrus.Fields{
			"message":  msg.MessageID,
			"attempts": attempts,
		}).Info("queued message replayed successfully")

	case result.Outcome == model.OutcomeFatal:
		s.finishMessage(ctx, msg, model.StatusFailed, attempts, result.Err)

	case attempts >= cnf.Queue.MaxTotalAttempts:
		s.finishMessage(ctx, msg, model.StatusFailed, attempts, result.Err)

	default:
		s.reschedule(ctx, msg, attempts, result.Err)
	}
}

func (s *QueueScheduler) finishMessage(ctx context.Context, msg *model.QueuedMessage, status model.MessageStatus, attempts int, cause error) {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	applied, err := s.bridge.datasource.UpdateQueuedMessageOutcome(ctx, msg.MessageID, status, attempts, msg.NextRetryAt, lastError)
	if err != nil {
		logrus.WithError(err).WithField("message", msg.MessageID).Error("failed to finish message")
		return
	}
	if !applied {
		logrus.WithField("message", msg.MessageID).Info("message moved on during replay, leaving its state")
		return
	}
	logrus.WithFields(logrus.Fields{
		"message":  msg.MessageID,
		"status":   status,
		"attempts": attempts,
	}).Warn("queued message exhausted its replay budget")
}

// reschedule computes the next replay instant from the effective retry policy
// and re-dispatches.
func (s *QueueScheduler) reschedule(ctx context.Context, msg *model.QueuedMessage, attempts int, cause error) {
	retry := s.bridge.policies.Load(ctx, msg.ServiceName, msg.TenantID).Retry

	nextRetryAt := time.Now().Add(retry.NextBackoff(attempts + 1))
	if nextRetryAt.After(msg.ExpiresAt) {
		nextRetryAt = msg.ExpiresAt
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	applied, err := s.bridge.datasource.UpdateQueuedMessageOutcome(ctx, msg.MessageID, model.StatusRetrying, attempts, nextRetryAt, lastError)
	if err != nil {
		logrus.WithError(err).WithField("message", msg.MessageID).Error("failed to reschedule message")
		return
	}
	if !applied {
		// A cancelled (or otherwise moved) row is never re-dispatched.
		logrus.WithField("message", msg.MessageID).Info("message moved on during replay, leaving its state")
		return
	}

	msg.AttemptCount = attempts
	msg.NextRetryAt = nextRetryAt
	if err := s.bridge.queue.EnqueueReplay(ctx, msg); err != nil {
		logrus.WithError(err).WithField("message", msg.MessageID).Warn("failed to re-enqueue replay task, scan will pick it up")
	}
}

// HandleReplayTask is the asynq handler for dispatched replay tasks. The
// database row stays the source of truth: the task payload only names the
// message, and a row that moved on since dispatch is left alone.
func (s *QueueScheduler) HandleReplayTask(ctx context.Context, task *asynq.Task) error {
	var payload model.QueuedMessage
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("failed to unmarshal replay task payload")
		return err
	}

	msg, err := s.bridge.datasource.GetQueuedMessage(ctx, payload.MessageID)
	if err != nil {
		return err
	}
	if msg.Status != model.StatusPending && msg.Status != model.StatusRetrying {
		return nil
	}
	if msg.NextRetryAt.After(time.Now()) {
		return nil
	}

	s.ProcessMessage(ctx, msg)
	return nil
}
