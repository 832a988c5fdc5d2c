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

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/paybridge/paybridge"
	"github.com/paybridge/paybridge/config"
	redis_db "github.com/paybridge/paybridge/internal/redis-db"
)

// initializeQueues builds the replay queue set. Messages are sharded across N
// queues by (service, tenant) so one hot downstream cannot starve the rest.
func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.MaxWorkers,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(scheduler *paybridge.QueueScheduler, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.MessageQueue, i)
		mux.HandleFunc(queueName, scheduler.HandleReplayTask)
	}
}

// workerCommands defines the "workers" command. A worker node consumes
// dispatched replay tasks and runs the periodic queue scan that catches
// anything dispatch missed.
func workerCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start paybridge workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			shutdown, err := initializeTracing(ctx)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			scheduler := paybridge.NewQueueScheduler(b.bridge)
			go func() {
				if err := scheduler.Start(ctx); err != nil {
					log.Printf("queue scheduler stopped: %v", err)
				}
			}()

			mux := asynq.NewServeMux()
			initializeTaskHandlers(scheduler, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
