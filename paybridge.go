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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/paybridge/paybridge/cache"
	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/database"
	redis_db "github.com/paybridge/paybridge/internal/redis-db"
)

var tracer = otel.Tracer("paybridge.router")

// SecretResolver turns a stored credential reference into the secret material
// attached to an outbound call. The default resolver passes the reference
// through untouched, which suits deployments where the reference is the value.
type SecretResolver func(ctx context.Context, ref string) (string, error)

// PayBridge represents the main struct for the PayBridge gateway: the routing
// service and everything it leans on.
type PayBridge struct {
	datasource database.IDataSource
	cache      cache.Cache
	redis      redis.UniversalClient
	queue      *Queue
	resolver   *AuthResolver
	policies   *PolicyEngine
	breakers   *BreakerRegistry
	bulkheads  *BulkheadRegistry
	secrets    SecretResolver
}

// NewPayBridge initializes the gateway with the provided datasource. It
// fetches the configuration and wires the Redis client, cache, resolver,
// policy engine and replay queue.
func NewPayBridge(db database.IDataSource) (*PayBridge, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	ca, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	cacheTTL := time.Duration(configuration.Resolver.CacheTTLSeconds) * time.Second
	newQueue := NewQueue(configuration)

	return &PayBridge{
		datasource: db,
		cache:      ca,
		redis:      redisClient.Client(),
		queue:      newQueue,
		resolver:   NewAuthResolver(db, ca, configuration.Environment, cacheTTL),
		policies:   NewPolicyEngine(db, ca, cacheTTL),
		breakers:   NewBreakerRegistry(),
		bulkheads:  NewBulkheadRegistry(),
		secrets:    passthroughSecrets,
	}, nil
}

func passthroughSecrets(_ context.Context, ref string) (string, error) {
	return ref, nil
}

// SetSecretResolver swaps in a deployment-specific credential backend.
func (p *PayBridge) SetSecretResolver(resolver SecretResolver) {
	if resolver != nil {
		p.secrets = resolver
	}
}

// Resolver exposes the auth resolver for the configuration API, which must
// invalidate cached lookups on every write.
func (p *PayBridge) Resolver() *AuthResolver {
	return p.resolver
}

// Policies exposes the policy engine for the configuration API.
func (p *PayBridge) Policies() *PolicyEngine {
	return p.policies
}

// Breakers exposes the breaker registry for the resiliency admin API.
func (p *PayBridge) Breakers() *BreakerRegistry {
	return p.breakers
}

// Queue exposes the replay queue.
func (p *PayBridge) Queue() *Queue {
	return p.queue
}

// Datasource exposes the underlying store for the API layer.
func (p *PayBridge) Datasource() database.IDataSource {
	return p.datasource
}
