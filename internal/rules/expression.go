package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// Compiler builds ExpressionRules from operator-configured CEL expressions.
//
// Available variables:
//
//	amount          double  transaction amount
//	currency        string  ISO 4217 code
//	country         string  beneficiary country
//	hour            int     hour of day in the reference timezone
//	client_id       string
//	beneficiary_id  string
type Compiler struct {
	env *cel.Env
	loc *time.Location
}

// NewCompiler creates a compiler. loc is the timezone used for the hour variable.
func NewCompiler(loc *time.Location) (*Compiler, error) {
	if loc == nil {
		loc = time.UTC
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("client_id", cel.StringType),
		cel.Variable("beneficiary_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Compiler{env: env, loc: loc}, nil
}

// Compile validates cfg and returns an executable rule.
func (c *Compiler) Compile(cfg *domain.RuleConfig) (*ExpressionRule, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rule config is required")
	}
	if cfg.ReasonCode == "" {
		return nil, fmt.Errorf("rule %s: reason code is required", cfg.ID)
	}
	if cfg.Weight < 0 {
		return nil, fmt.Errorf("rule %s: weight must be non-negative", cfg.ID)
	}

	ast, issues := c.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &ExpressionRule{config: cfg, program: program, loc: c.loc}, nil
}

// ExpressionRule is a Rule backed by a compiled CEL program. It has no
// external dependency; evaluation errors yield an untriggered signal.
type ExpressionRule struct {
	config  *domain.RuleConfig
	program cel.Program
	loc     *time.Location
}

func (r *ExpressionRule) ReasonCode() string {
	return r.config.ReasonCode
}

// Config returns the rule definition.
func (r *ExpressionRule) Config() *domain.RuleConfig {
	return r.config
}

func (r *ExpressionRule) Evaluate(_ context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	activation := map[string]any{
		"amount":         tx.Amount.InexactFloat64(),
		"currency":       tx.Currency,
		"country":        tx.BeneficiaryCountry,
		"hour":           int64(tx.Timestamp.In(r.loc).Hour()),
		"client_id":      tx.ClientID,
		"beneficiary_id": tx.BeneficiaryID,
	}

	out, _, err := r.program.Eval(activation)
	if err != nil {
		slog.Warn("expression rule evaluation failed",
			"rule_id", r.config.ID,
			"reason_code", r.config.ReasonCode,
			"transaction_id", tx.ID,
			"error", err,
		)
		return domain.NotTriggered(r.config.ReasonCode), nil
	}

	if v, ok := out.(types.Bool); ok && bool(v) {
		return domain.Triggered(r.config.ReasonCode, r.config.Weight), nil
	}
	return domain.NotTriggered(r.config.ReasonCode), nil
}
