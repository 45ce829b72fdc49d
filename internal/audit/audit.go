// Package audit persists final risk scores as immutable audit records.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/metrics"
	"github.com/opensource-finance/riskscore/internal/repository"
)

// Store persists audit records.
type Store interface {
	SaveRiskScore(ctx context.Context, rec *domain.AuditRecord) error
}

// Recorder implements domain.AuditRecorder. Record never fails the caller:
// store and publish errors are logged and counted.
type Recorder struct {
	store   Store
	bus     domain.EventBus
	metrics *metrics.Metrics
	enabled bool
	actor   string
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEventBus publishes score events after each successful write.
func WithEventBus(bus domain.EventBus) Option {
	return func(r *Recorder) { r.bus = bus }
}

// WithMetrics counts failed writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithEnabled turns recording on or off. A disabled recorder is a no-op.
func WithEnabled(enabled bool) Option {
	return func(r *Recorder) { r.enabled = enabled }
}

// WithActor overrides the createdBy value.
func WithActor(actor string) Option {
	return func(r *Recorder) { r.actor = actor }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates an enabled recorder writing to store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		enabled: true,
		actor:   domain.DefaultAuditActor,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether Record writes anything.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Record converts score into an audit record and stores it.
func (r *Recorder) Record(ctx context.Context, score domain.RiskScore) {
	if !r.enabled || r.store == nil {
		return
	}

	rec := NewRecord(score, r.actor, r.now())

	if err := r.store.SaveRiskScore(ctx, rec); err != nil {
		r.metrics.AuditFailure()
		if errors.Is(err, repository.ErrDuplicate) {
			slog.Warn("audit record already exists",
				"transaction_id", rec.TransactionID,
				"error", err,
			)
			return
		}
		slog.Error("failed to record risk score",
			"transaction_id", rec.TransactionID,
			"error", err,
		)
		return
	}

	slog.Debug("risk score recorded",
		"transaction_id", rec.TransactionID,
		"audit_id", rec.ID,
	)

	r.publish(ctx, rec)
}

// NewRecord builds the persisted form of score.
func NewRecord(score domain.RiskScore, actor string, at time.Time) *domain.AuditRecord {
	if actor == "" {
		actor = domain.DefaultAuditActor
	}
	codes := append([]string{}, score.ReasonCodes...)
	return &domain.AuditRecord{
		ID:                uuid.New().String(),
		TransactionID:     score.TransactionID,
		Score:             score.Score,
		Level:             score.Level,
		ReasonCodes:       codes,
		CalculationTimeMs: score.CalculationTimeMs,
		CreatedAt:         at.UTC(),
		CreatedBy:         actor,
	}
}

func (r *Recorder) publish(ctx context.Context, rec *domain.AuditRecord) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to marshal score event", "transaction_id", rec.TransactionID, "error", err)
		return
	}

	topics := []string{domain.TopicScoreRecorded}
	if (domain.RiskScore{Level: rec.Level}).IsAlert() {
		topics = append(topics, domain.TopicScoreAlert)
	}

	for _, topic := range topics {
		if err := r.bus.Publish(ctx, topic, payload); err != nil {
			slog.Warn("failed to publish score event",
				"topic", topic,
				"transaction_id", rec.TransactionID,
				"error", err,
			)
		}
	}
}

var _ domain.AuditRecorder = (*Recorder)(nil)
