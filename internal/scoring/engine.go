// Package scoring aggregates rule signals into a classified risk score.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/rules"
)

// ErrInvalidTransaction is returned for a nil or unidentified transaction.
var ErrInvalidTransaction = errors.New("invalid transaction")

var tracer = otel.Tracer("riskscore-scoring")

// SignalObserver receives every signal the engine collects, for metrics.
type SignalObserver func(sig domain.RiskSignal)

// Engine evaluates an ordered rule registry and classifies the result.
// It performs no I/O of its own.
type Engine struct {
	rules      []rules.Rule
	thresholds domain.RiskThresholds
	observe    SignalObserver
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSignalObserver registers a callback for each collected signal.
func WithSignalObserver(fn SignalObserver) EngineOption {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine creates an engine over reg. Thresholds must be monotonic.
func NewEngine(reg *rules.Registry, thresholds domain.RiskThresholds, opts ...EngineOption) (*Engine, error) {
	if !thresholds.Monotonic() {
		return nil, fmt.Errorf("risk thresholds must be strictly increasing: %+v", thresholds)
	}
	e := &Engine{
		rules:      reg.Rules(),
		thresholds: thresholds,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the classification thresholds.
func (e *Engine) Thresholds() domain.RiskThresholds {
	return e.thresholds
}

// CalculateScore evaluates every rule in order and returns the classified
// score. An error is returned only when a rule surfaces one, which happens
// for unguarded dependency-bearing rules.
func (e *Engine) CalculateScore(ctx context.Context, tx *domain.Transaction) (domain.RiskScore, error) {
	if tx == nil || tx.ID == "" {
		return domain.RiskScore{}, ErrInvalidTransaction
	}

	ctx, span := tracer.Start(ctx, "scoring.CalculateScore",
		trace.WithAttributes(attribute.String("transaction.id", tx.ID)),
	)
	defer span.End()

	start := e.now()

	signals := make([]domain.RiskSignal, 0, len(e.rules))
	for _, r := range e.rules {
		sig, err := r.Evaluate(ctx, tx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			return domain.RiskScore{}, fmt.Errorf("rule %s: %w", r.ReasonCode(), err)
		}

		if sig.Triggered {
			slog.Info("rule triggered",
				"transaction_id", tx.ID,
				"reason_code", sig.ReasonCode,
				"weight", sig.Weight,
			)
		} else {
			slog.Debug("rule not triggered",
				"transaction_id", tx.ID,
				"reason_code", sig.ReasonCode,
			)
		}
		if e.observe != nil {
			e.observe(sig)
		}
		signals = append(signals, sig)
	}

	score := Aggregate(tx.ID, signals, e.thresholds)
	score.CalculationTimeMs = e.now().Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("risk.score", score.Score),
		attribute.String("risk.level", string(score.Level)),
	)

	return score, nil
}

// Aggregate sums the weights of triggered signals, collects their reason
// codes in signal order and classifies the total.
func Aggregate(txID string, signals []domain.RiskSignal, thresholds domain.RiskThresholds) domain.RiskScore {
	score := domain.RiskScore{
		TransactionID: txID,
		ReasonCodes:   []string{},
	}

	for _, sig := range signals {
		if !sig.Triggered {
			continue
		}
		score.Score += sig.Weight
		score.ReasonCodes = append(score.ReasonCodes, sig.ReasonCode)
	}

	score.Level = domain.ClassifyRiskLevel(score.Score, thresholds)
	return score
}
