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
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/paybridge/paybridge/config"
	redis_db "github.com/paybridge/paybridge/internal/redis-db"
	"github.com/paybridge/paybridge/model"
)

// Queue is the asynq dispatch layer over the durable replay rows. Tasks are
// sharded across N queues by (service, tenant) so replays against the same
// downstream run serially and cannot stampede a recovering system.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes the replay queue from the configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueReplay schedules the dispatch task for one queued message at its
// next_retry_at instant. The task id reuses the message id, making the
// enqueue idempotent: the broker rejects a second dispatch for the same row.
func (q *Queue) EnqueueReplay(ctx context.Context, msg *model.QueuedMessage) error {
	if q == nil || q.Client == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	queueName, err := q.replayQueueName(msg)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(msg.MessageID),
		asynq.Queue(queueName),
		asynq.ProcessIn(time.Until(msg.NextRetryAt)),
		asynq.MaxRetry(0),
	}
	task := asynq.NewTask(queueName, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued replay: %+v", msg.MessageID)
	return nil
}

// CancelReplay removes the pending dispatch task for a message, if any. The
// database row keeps the authoritative CANCELLED status either way.
func (q *Queue) CancelReplay(messageID string) error {
	if q == nil || q.Inspector == nil {
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		if err := q.Inspector.DeleteTask(queueName, messageID); err == nil {
			return nil
		}
	}
	return nil
}

// GetReplayFromQueue retrieves a scheduled replay task by its message id.
func (q *Queue) GetReplayFromQueue(messageID string) (*model.QueuedMessage, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, messageID)
		if err == nil && task != nil {
			var msg model.QueuedMessage
			if err := json.Unmarshal(task.Payload, &msg); err != nil {
				return nil, err
			}
			return &msg, nil
		}
	}
	return nil, nil
}

// replayQueueName shards replays by (service, tenant) across the configured
// number of queues.
func (q *Queue) replayQueueName(msg *model.QueuedMessage) (string, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return "", err
	}
	queueIndex := hashReplayKey(msg.ServiceName+":"+msg.TenantID) % cnf.Queue.NumberOfQueues
	return fmt.Sprintf("%s_%d", cnf.Queue.MessageQueue, queueIndex+1), nil
}

func hashReplayKey(key string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum32())
}
