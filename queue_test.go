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
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/model"
)

func TestReplayQueueNameIsStablePerServiceTenant(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Queue: config.QueueConfig{MessageQueue: "downstream_replay", NumberOfQueues: 4},
	})

	q := &Queue{}
	msg := &model.QueuedMessage{
		MessageID:   gofakeit.UUID(),
		ServiceName: "fraud-check",
		TenantID:    "tn_1",
	}

	first, err := q.replayQueueName(msg)
	assert.NoError(t, err)

	// A different message for the same pair lands on the same shard.
	msg.MessageID = gofakeit.UUID()
	second, err := q.replayQueueName(msg)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayQueueNameSpreadsAcrossShards(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Queue: config.QueueConfig{MessageQueue: "downstream_replay", NumberOfQueues: 4},
	})

	q := &Queue{}
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		name, err := q.replayQueueName(&model.QueuedMessage{
			MessageID:   gofakeit.UUID(),
			ServiceName: gofakeit.AppName(),
			TenantID:    gofakeit.UUID(),
		})
		assert.NoError(t, err)
		seen[name] = true
	}

	assert.Greater(t, len(seen), 1, "replays for distinct pairs should not collapse onto one queue")
	for name := range seen {
		assert.Contains(t, []string{
			"downstream_replay_1", "downstream_replay_2",
			"downstream_replay_3", "downstream_replay_4",
		}, name)
	}
}
