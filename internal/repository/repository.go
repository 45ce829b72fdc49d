// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/riskscore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate record")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// FindHistory returns the aggregate for a client/beneficiary pair.
// An unknown pair yields nil, nil.
func (r *SQLRepository) FindHistory(ctx context.Context, clientID, beneficiaryID string) (*domain.HistoryAggregate, error) {
	if clientID == "" || beneficiaryID == "" {
		return nil, fmt.Errorf("%w: clientID and beneficiaryID are required", ErrInvalidInput)
	}

	query := `
		SELECT client_id, beneficiary_id, avg_amount, last_seen
		FROM transaction_history
		WHERE client_id = ? AND beneficiary_id = ?
	`

	var h domain.HistoryAggregate
	var lastSeen sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), clientID, beneficiaryID).Scan(
		&h.ClientID, &h.BeneficiaryID, &h.AvgAmount, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}

	if lastSeen.Valid {
		t := lastSeen.Time.UTC()
		h.LastSeen = &t
	}
	return &h, nil
}

// SaveHistory inserts or replaces the aggregate for a pair.
func (r *SQLRepository) SaveHistory(ctx context.Context, h *domain.HistoryAggregate) error {
	if h == nil || h.ClientID == "" || h.BeneficiaryID == "" {
		return fmt.Errorf("%w: clientID and beneficiaryID are required", ErrInvalidInput)
	}

	var avg any
	if h.AvgAmount.Valid {
		avg = h.AvgAmount.Decimal.StringFixed(2)
	}
	var lastSeen any
	if h.LastSeen != nil {
		lastSeen = h.LastSeen.UTC()
	}

	query := `
		INSERT INTO transaction_history (
			id, client_id, beneficiary_id, avg_amount, last_seen, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, beneficiary_id) DO UPDATE SET
			avg_amount = excluded.avg_amount,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.New().String(), h.ClientID, h.BeneficiaryID,
		avg, lastSeen, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// SaveRiskScore stores an audit record. A second record for the same
// transaction ID returns ErrDuplicate.
func (r *SQLRepository) SaveRiskScore(ctx context.Context, rec *domain.AuditRecord) error {
	if rec == nil || rec.TransactionID == "" {
		return fmt.Errorf("%w: transactionID is required", ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.CreatedBy == "" {
		rec.CreatedBy = domain.DefaultAuditActor
	}

	reasonCodes := rec.ReasonCodes
	if reasonCodes == nil {
		reasonCodes = []string{}
	}
	codes, err := json.Marshal(reasonCodes)
	if err != nil {
		return fmt.Errorf("marshal reason codes: %w", err)
	}

	query := `
		INSERT INTO transaction_risk_scores (
			id, transaction_id, risk_score, risk_level, reason_codes,
			calculation_time_ms, created_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.TransactionID, rec.Score, string(rec.Level), string(codes),
		rec.CalculationTimeMs, rec.CreatedAt.UTC(), rec.CreatedBy,
	)
	if err != nil {
		if r.isUniqueViolation(err) {
			return fmt.Errorf("%w: risk score for transaction %s", ErrDuplicate, rec.TransactionID)
		}
		return fmt.Errorf("save risk score: %w", err)
	}
	return nil
}

// GetRiskScore retrieves the audit record for a transaction.
func (r *SQLRepository) GetRiskScore(ctx context.Context, transactionID string) (*domain.AuditRecord, error) {
	query := `
		SELECT id, transaction_id, risk_score, risk_level, reason_codes,
			   calculation_time_ms, created_at, created_by
		FROM transaction_risk_scores
		WHERE transaction_id = ?
	`

	var rec domain.AuditRecord
	var level, codes string

	err := r.db.QueryRowContext(ctx, r.rebind(query), transactionID).Scan(
		&rec.ID, &rec.TransactionID, &rec.Score, &level, &codes,
		&rec.CalculationTimeMs, &rec.CreatedAt, &rec.CreatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get risk score: %w", err)
	}

	rec.Level = domain.RiskLevel(level)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(codes), &rec.ReasonCodes); err != nil {
		return nil, fmt.Errorf("decode reason codes: %w", err)
	}
	return &rec, nil
}

// SaveRuleConfig inserts or updates an expression rule.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}
	if rule.Expression == "" || rule.ReasonCode == "" {
		return fmt.Errorf("%w: expression and reason code are required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, expression, reason_code,
			weight, position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason_code = excluded.reason_code,
			weight = excluded.weight,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.ReasonCode,
		rule.Weight, rule.Position, boolToInt(rule.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("save rule config: %w", err)
	}
	return nil
}

// ListRuleConfigs returns every expression rule ordered by position.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, reason_code, weight, position, enabled
		FROM rule_configs
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rule configs: %w", err)
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		var rule domain.RuleConfig
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression, &rule.ReasonCode,
			&rule.Weight, &rule.Position, &enabled,
		); err != nil {
			return nil, fmt.Errorf("scan rule config: %w", err)
		}
		rule.Description = description.String
		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) isUniqueViolation(err error) bool {
	if r.driver == "postgres" {
		return isPostgresUniqueViolation(err)
	}
	return isSQLiteUniqueViolation(err)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// compile-time check
var _ domain.Repository = (*SQLRepository)(nil)
