package paybridge

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/paybridge/paybridge/cache"
	"github.com/paybridge/paybridge/config"
	"github.com/paybridge/paybridge/database"
	"github.com/paybridge/paybridge/database/mocks"
)

// newTestBridge wires a PayBridge against a mocked datasource and a miniredis
// backed cache. The asynq client stays nil; dispatch is best effort and the
// nil-safe queue methods make that a no-op in tests.
func newTestBridge(t *testing.T, ds database.IDataSource) *PayBridge {
	t.Helper()

	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Environment: "sandbox",
		DataSource:  config.DataSourceConfig{Dns: "postgres://test"},
		Redis:       config.RedisConfig{Dns: mr.Addr()},
	})

	ca, err := cache.NewCache()
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}

	cacheTTL := 30 * time.Second
	return &PayBridge{
		datasource: ds,
		cache:      ca,
		queue:      &Queue{},
		resolver:   NewAuthResolver(ds, ca, "sandbox", cacheTTL),
		policies:   NewPolicyEngine(ds, ca, cacheTTL),
		breakers:   NewBreakerRegistry(),
		bulkheads:  NewBulkheadRegistry(),
		secrets:    passthroughSecrets,
	}
}

func newMockBridge(t *testing.T) (*PayBridge, *mocks.MockDataSource) {
	t.Helper()
	ds := new(mocks.MockDataSource)
	return newTestBridge(t, ds), ds
}
