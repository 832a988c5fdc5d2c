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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis struct holds the Redis client and addresses of Redis instances.
// It supports both single-instance Redis connections and Redis Cluster setups.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL parses a Redis URL into Redis options. It accepts docker-style
// host:port addresses, full redis:// URLs, and password-only auth forms.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	// Don't modify docker-style addresses (e.g. redis:6379)
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{
			Addr: rawURL,
		}, nil
	}

	// Normalize password-only auth (redis://secret@host) to the form ParseURL accepts
	if strings.HasPrefix(rawURL, "redis://") && strings.Contains(rawURL, "@") {
		parts := strings.Split(strings.TrimPrefix(rawURL, "redis://"), "@")
		if len(parts) == 2 {
			authParts := strings.Split(parts[0], ":")
			if len(authParts) == 1 {
				rawURL = fmt.Sprintf("redis://:%s@%s", parts[0], parts[1])
			}
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		// Fall back to manual parsing for addresses ParseURL rejects
		host := rawURL
		var password string
		if strings.Contains(rawURL, "@") {
			parts := strings.Split(rawURL, "@")
			if len(parts) == 2 {
				password = strings.TrimPrefix(parts[0], "redis://")
				host = parts[1]
			}
		}
		opts = &redis.Options{
			Addr:     host,
			Password: password,
			DB:       0,
		}
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: skipTLSVerify,
		}
	}

	return opts, nil
}

// NewRedisClient creates a new Redis client connection based on the provided
// list of addresses. A single address yields a standalone client; multiple
// addresses yield a cluster client.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient

	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		var clusterAddrs []string
		var password string
		useTLS := false

		for _, addr := range addresses {
			opts, err := ParseRedisURL(addr, skipTLSVerify)
			if err != nil {
				return nil, err
			}
			clusterAddrs = append(clusterAddrs, opts.Addr)

			// Use the password from the first URL that has one
			if password == "" && opts.Password != "" {
				password = opts.Password
			}
			if opts.TLSConfig != nil {
				useTLS = true
			}
		}
		var tlsConfig *tls.Config
		if useTLS {
			tlsConfig = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: skipTLSVerify,
			}
		}

		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:     clusterAddrs,
			Password:  password,
			TLSConfig: tlsConfig,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &Redis{addresses: addresses, client: client}, nil
}

// Client returns the Redis universal client for direct Redis operations.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}
