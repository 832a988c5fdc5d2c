package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/paybridge/paybridge/cache"
	"github.com/paybridge/paybridge/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and
// initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if err := CreateTables(db); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateTables creates the gateway's tables when they don't exist yet. The
// migrate command calls it directly against a fresh connection.
func CreateTables(db *sql.DB) error {
	err := createAuthConfigurationTable(db)
	if err != nil {
		return err
	}
	err = createResiliencyConfigurationTable(db)
	if err != nil {
		return err
	}
	err = createQueuedMessageTable(db)
	if err != nil {
		return err
	}
	err = createTenantAccessTable(db)
	if err != nil {
		return err
	}
	err = createDownstreamServiceTable(db)
	if err != nil {
		return err
	}
	return nil
}

// createAuthConfigurationTable creates the table for AuthLevelRecord. The
// partial unique index enforces at most one active record per exact scope key.
func createAuthConfigurationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS auth_configurations (
			id SERIAL PRIMARY KEY,
			record_id TEXT NOT NULL UNIQUE,
			scope_level TEXT NOT NULL,
			environment TEXT NOT NULL DEFAULT '',
			tenant_id TEXT NOT NULL DEFAULT '',
			payment_type TEXT NOT NULL DEFAULT '',
			service_type TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			auth_method TEXT NOT NULL,
			credential_ref TEXT,
			include_client_headers BOOLEAN NOT NULL DEFAULT TRUE,
			header_overrides JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS auth_configurations_active_scope_idx
			ON auth_configurations (scope_level, environment, tenant_id, payment_type, service_type, endpoint)
			WHERE is_active
	`)
	if err != nil {
		log.Printf("Error creating auth_configurations table: %v", err)
	}
	return err
}

func createResiliencyConfigurationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS resiliency_configurations (
			id SERIAL PRIMARY KEY,
			config_id TEXT NOT NULL UNIQUE,
			service_name TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			priority INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			circuit_breaker JSONB,
			retry JSONB,
			bulkhead JSONB,
			timeout JSONB,
			fallback JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS resiliency_configurations_key_idx
			ON resiliency_configurations (service_name, tenant_id, is_active, priority DESC)
	`)
	if err != nil {
		log.Printf("Error creating resiliency_configurations table: %v", err)
	}
	return err
}

func createQueuedMessageTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_messages (
			id SERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			service_name TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			payment_type TEXT NOT NULL DEFAULT '',
			payload JSONB,
			headers JSONB,
			reason TEXT,
			status TEXT NOT NULL,
			attempt_count INT NOT NULL DEFAULT 0,
			next_retry_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL,
			claimed_at TIMESTAMP,
			last_error TEXT
		);
		CREATE INDEX IF NOT EXISTS queued_messages_due_idx
			ON queued_messages (status, next_retry_at);
		CREATE INDEX IF NOT EXISTS queued_messages_service_idx
			ON queued_messages (tenant_id, service_name, status)
	`)
	if err != nil {
		log.Printf("Error creating queued_messages table: %v", err)
	}
	return err
}

func createTenantAccessTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tenant_service_access (
			id SERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			service_type TEXT NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			payment_type TEXT NOT NULL DEFAULT '',
			is_allowed BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, service_type, endpoint, payment_type)
		)
	`)
	if err != nil {
		log.Printf("Error creating tenant_service_access table: %v", err)
	}
	return err
}

func createDownstreamServiceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS downstream_services (
			id SERIAL PRIMARY KEY,
			service_name TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL,
			health_path TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (service_name, tenant_id)
		)
	`)
	if err != nil {
		log.Printf("Error creating downstream_services table: %v", err)
	}
	return err
}
