package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/metrics"
)

// EngineDependency names the breaker wrapping the whole engine in
// ResilienceEngine mode.
const EngineDependency = "scoringEngine"

// Service is the inbound entry point: it runs the engine under the
// configured resilience discipline and hands the result to the audit recorder.
type Service struct {
	engine       *Engine
	audit        domain.AuditRecorder
	auditTimeout time.Duration
	breaker      *circuit.Breaker
	metrics      *metrics.Metrics
}

// DefaultAuditTimeout bounds the audit hand-off when no timeout is configured.
const DefaultAuditTimeout = 2 * time.Second

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEngineBreaker runs every calculation under b and replaces the score
// with the SYSTEM_UNAVAILABLE result when it fails. Use it only when the
// rules themselves are unguarded.
func WithEngineBreaker(b *circuit.Breaker) ServiceOption {
	return func(s *Service) { s.breaker = b }
}

// WithAuditTimeout bounds how long CalculateRiskScore waits on the recorder.
func WithAuditTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.auditTimeout = d
		}
	}
}

// WithMetrics records calculation counts and latency.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a scoring service. audit may be nil.
func NewService(engine *Engine, audit domain.AuditRecorder, opts ...ServiceOption) *Service {
	s := &Service{engine: engine, audit: audit, auditTimeout: DefaultAuditTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the active resilience discipline.
func (s *Service) Mode() domain.ResilienceMode {
	if s.breaker != nil {
		return domain.ResilienceEngine
	}
	return domain.ResiliencePerRule
}

// CalculateRiskScore scores a validated transaction. The audit outcome
// never changes the returned score.
func (s *Service) CalculateRiskScore(ctx context.Context, tx *domain.Transaction) (domain.RiskScore, error) {
	if tx == nil || tx.ID == "" {
		return domain.RiskScore{}, ErrInvalidTransaction
	}

	start := time.Now()

	var score domain.RiskScore
	if s.breaker != nil {
		score = circuit.Call(ctx, s.breaker,
			func(ctx context.Context) (domain.RiskScore, error) {
				return s.engine.CalculateScore(ctx, tx)
			},
			func(err error) domain.RiskScore {
				slog.Warn("scoring engine unavailable, returning fallback score",
					"transaction_id", tx.ID,
					"breaker", s.breaker.Name(),
					"error", err,
				)
				return domain.SystemUnavailableScore(tx.ID, s.engine.Thresholds())
			},
		)
	} else {
		var err error
		score, err = s.engine.CalculateScore(ctx, tx)
		if err != nil {
			return domain.RiskScore{}, fmt.Errorf("calculate risk score: %w", err)
		}
	}

	s.metrics.ObserveScore(score.Level, time.Since(start))

	slog.Info("risk score calculated",
		"transaction_id", score.TransactionID,
		"risk_score", score.Score,
		"risk_level", score.Level,
		"reason_codes", score.ReasonCodes,
		"calculation_time_ms", score.CalculationTimeMs,
	)

	if s.audit != nil {
		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
		s.audit.Record(auditCtx, score.Clone())
		cancel()
	}

	return score, nil
}
