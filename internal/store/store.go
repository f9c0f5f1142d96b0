// Package store is the authoritative Postgres-backed persistence layer:
// tenants, credentials, budgets, routing rules, usage records, and
// security events. Writes on the hot request path are budget settlement,
// security-event persistence and routing-rule statistics; usage records
// are written in batches by the usage logger's worker.
package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DSN             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// Store wraps the gorm handle with typed accessors for each entity. A
// single Store is shared across the process; gorm's *DB is safe for
// concurrent use.
type Store struct {
	db *gorm.DB
}

func Open(cfg *Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 50
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:     gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}
	if err := s.db.AutoMigrate(
		&models.Tenant{},
		&models.Credential{},
		&models.Budget{},
		&models.RoutingRule{},
		&models.UsageRecord{},
		&models.SecurityEvent{},
		&models.AgentPolicy{},
		&models.DetectorBaseline{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	return s.createIndexes()
}

func (s *Store) createIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_credentials_fingerprint ON credentials(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_budgets_tenant_scope ON budgets(tenant_id, scope, scope_key)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_tenant_priority ON routing_rules(tenant_id, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_records_tenant_occurred ON usage_records(tenant_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_records_agent_occurred ON usage_records(agent_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_tenant_detected ON security_events(tenant_id, detected_at)`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) IsHealthy() bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}
