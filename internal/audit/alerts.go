package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/metrics"
)

// AlertWatcher consumes riskscore.score.alert events, logging each one and
// counting it by level.
type AlertWatcher struct {
	sub     domain.Subscription
	metrics *metrics.Metrics
}

// WatchAlerts subscribes to the alert topic on bus. Handling stops when ctx
// ends or Stop is called.
func WatchAlerts(ctx context.Context, bus domain.EventBus, m *metrics.Metrics) (*AlertWatcher, error) {
	w := &AlertWatcher{metrics: m}

	sub, err := bus.Subscribe(ctx, domain.TopicScoreAlert, w.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", domain.TopicScoreAlert, err)
	}
	w.sub = sub
	return w, nil
}

func (w *AlertWatcher) handle(_ context.Context, msg *domain.Message) error {
	var rec domain.AuditRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return fmt.Errorf("decode alert %s: %w", msg.ID, err)
	}

	w.metrics.ScoreAlert(rec.Level)
	slog.Warn("risk alert",
		"transaction_id", rec.TransactionID,
		"risk_score", rec.Score,
		"risk_level", rec.Level,
		"reason_codes", rec.ReasonCodes,
		"audit_id", rec.ID,
	)
	return nil
}

// Stop unsubscribes from the alert topic.
func (w *AlertWatcher) Stop() error {
	if w.sub == nil {
		return nil
	}
	return w.sub.Unsubscribe()
}
