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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"
	// DEFAULT_ENVIRONMENT scopes clearing-system level auth records when no
	// environment is configured.
	DEFAULT_ENVIRONMENT = "sandbox"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYBRIDGE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYBRIDGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYBRIDGE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYBRIDGE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYBRIDGE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYBRIDGE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYBRIDGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYBRIDGE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYBRIDGE_REDIS_SKIP_TLS_VERIFY"`
}

// ResolverConfig tunes the auth-configuration resolver cache. The config store
// stays the source of truth; the TTL only bounds staleness between the
// configuration-changed signal and the next read.
type ResolverConfig struct {
	CacheTTLSeconds int `json:"cache_ttl_seconds" envconfig:"PAYBRIDGE_RESOLVER_CACHE_TTL_SECONDS"`
}

// QueueConfig drives the durable retry queue and its scheduler.
type QueueConfig struct {
	MessageQueue     string `json:"message_queue" envconfig:"PAYBRIDGE_QUEUE_NAME"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"PAYBRIDGE_NUMBER_OF_QUEUES"`
	MaxTotalAttempts int    `json:"max_total_attempts" envconfig:"PAYBRIDGE_QUEUE_MAX_TOTAL_ATTEMPTS"`
	DefaultExpirySec int    `json:"default_expiry_sec" envconfig:"PAYBRIDGE_QUEUE_DEFAULT_EXPIRY_SEC"`
	ClaimTimeoutSec  int    `json:"claim_timeout_sec" envconfig:"PAYBRIDGE_QUEUE_CLAIM_TIMEOUT_SEC"`
	ScanIntervalSec  int    `json:"scan_interval_sec" envconfig:"PAYBRIDGE_QUEUE_SCAN_INTERVAL_SEC"`
	ScanBatchSize    int    `json:"scan_batch_size" envconfig:"PAYBRIDGE_QUEUE_SCAN_BATCH_SIZE"`
	ScanBudgetSec    int    `json:"scan_budget_sec" envconfig:"PAYBRIDGE_QUEUE_SCAN_BUDGET_SEC"`
	MaxWorkers       int    `json:"max_workers" envconfig:"PAYBRIDGE_QUEUE_MAX_WORKERS"`
}

// SelfHealingConfig drives the downstream health monitor.
type SelfHealingConfig struct {
	ProbeIntervalSec int   `json:"probe_interval_sec" envconfig:"PAYBRIDGE_SELF_HEALING_PROBE_INTERVAL_SEC"`
	HealthyThreshold int   `json:"healthy_threshold" envconfig:"PAYBRIDGE_SELF_HEALING_HEALTHY_THRESHOLD"`
	ProbeTimeoutMs   int64 `json:"probe_timeout_ms" envconfig:"PAYBRIDGE_SELF_HEALING_PROBE_TIMEOUT_MS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYBRIDGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYBRIDGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYBRIDGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName        string            `json:"project_name" envconfig:"PAYBRIDGE_PROJECT_NAME"`
	Environment        string            `json:"environment" envconfig:"PAYBRIDGE_ENVIRONMENT"`
	BackupDir          string            `json:"backup_dir" envconfig:"PAYBRIDGE_BACKUP_DIR"`
	AwsAccessKeyId     string            `json:"aws_access_key_id"`
	S3Endpoint         string            `json:"s3_endpoint"`
	AwsSecretAccessKey string            `json:"aws_secret_access_key"`
	S3BucketName       string            `json:"s3_bucket_name"`
	S3Region           string            `json:"s3_region"`
	Server             ServerConfig      `json:"server"`
	DataSource         DataSourceConfig  `json:"data_source"`
	Redis              RedisConfig       `json:"redis"`
	Resolver           ResolverConfig    `json:"resolver"`
	Queue              QueueConfig       `json:"queue"`
	SelfHealing        SelfHealingConfig `json:"self_healing"`
	Notification       Notification      `json:"notification"`
	RateLimit          RateLimitConfig   `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("paybridge", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called paybridge.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "PayBridge Gateway"
	}

	if cnf.Environment == "" {
		cnf.Environment = DEFAULT_ENVIRONMENT
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Environment = strings.TrimSpace(cnf.Environment)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Resolver.CacheTTLSeconds <= 0 {
		cnf.Resolver.CacheTTLSeconds = 30
	}

	if cnf.Queue.MessageQueue == "" {
		cnf.Queue.MessageQueue = "new:downstream_replay"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MaxTotalAttempts <= 0 {
		cnf.Queue.MaxTotalAttempts = 10
	}
	if cnf.Queue.DefaultExpirySec <= 0 {
		cnf.Queue.DefaultExpirySec = 86400
	}
	if cnf.Queue.ClaimTimeoutSec <= 0 {
		cnf.Queue.ClaimTimeoutSec = 300
	}
	if cnf.Queue.ScanIntervalSec <= 0 {
		cnf.Queue.ScanIntervalSec = 30
	}
	if cnf.Queue.ScanBatchSize <= 0 {
		cnf.Queue.ScanBatchSize = 500
	}
	if cnf.Queue.ScanBudgetSec <= 0 {
		cnf.Queue.ScanBudgetSec = 25
	}
	if cnf.Queue.MaxWorkers <= 0 {
		cnf.Queue.MaxWorkers = 10
	}

	if cnf.SelfHealing.ProbeIntervalSec <= 0 {
		cnf.SelfHealing.ProbeIntervalSec = 15
	}
	if cnf.SelfHealing.HealthyThreshold <= 0 {
		cnf.SelfHealing.HealthyThreshold = 3
	}
	if cnf.SelfHealing.ProbeTimeoutMs <= 0 {
		cnf.SelfHealing.ProbeTimeoutMs = 5000
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
