package repository

// Schema definitions for the risk scorer database.
// Compatible with both SQLite and PostgreSQL.

// schemaTransactionHistory holds one aggregate per client/beneficiary pair.
// avg_amount and last_seen are both nullable on a known pair.
const schemaTransactionHistory = `
CREATE TABLE IF NOT EXISTS transaction_history (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    beneficiary_id TEXT NOT NULL,
    avg_amount NUMERIC(18,2),
    last_seen TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (client_id, beneficiary_id)
);
`

const schemaRiskScores = `
CREATE TABLE IF NOT EXISTS transaction_risk_scores (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL UNIQUE,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    reason_codes TEXT NOT NULL,
    calculation_time_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    created_by TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_scores_level ON transaction_risk_scores(risk_level);
CREATE INDEX IF NOT EXISTS idx_risk_scores_created ON transaction_risk_scores(created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    reason_code TEXT NOT NULL,
    weight INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled, position);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactionHistory,
		schemaRiskScores,
		schemaRuleConfigs,
	}
}
