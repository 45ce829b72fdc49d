// Package domain defines the core types and interfaces of the risk scorer.
package domain

import (
	"context"
	"time"
)

// HistoryLookup resolves the aggregate history of a client/beneficiary pair.
// A nil aggregate with a nil error means the pair has never transacted.
// Errors are reserved for transport or storage failures.
type HistoryLookup interface {
	Find(ctx context.Context, clientID, beneficiaryID string) (*HistoryAggregate, error)
}

// AuditRecorder consumes final scores. Implementations must not fail the caller.
type AuditRecorder interface {
	Record(ctx context.Context, score RiskScore)
}

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction history
	FindHistory(ctx context.Context, clientID, beneficiaryID string) (*HistoryAggregate, error)
	SaveHistory(ctx context.Context, h *HistoryAggregate) error

	// Audit records, unique per transaction ID
	SaveRiskScore(ctx context.Context, rec *AuditRecord) error
	GetRiskScore(ctx context.Context, transactionID string) (*AuditRecord, error)

	// Expression rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"DB_DRIVER"`

	// SQLite specific
	SQLitePath string `env:"SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     int    `env:"POSTGRES_PORT"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"`
}
