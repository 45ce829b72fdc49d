package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/riskscore/internal/bus"
	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/metrics"
	"github.com/opensource-finance/riskscore/internal/repository"
)

type memoryStore struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
	err     error
}

func (s *memoryStore) SaveRiskScore(_ context.Context, rec *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func highScore() domain.RiskScore {
	return domain.RiskScore{
		TransactionID:     "tx-1",
		Score:             450,
		Level:             domain.RiskHigh,
		ReasonCodes:       []string{domain.ReasonHighRiskCountry, domain.ReasonHighValueTransaction},
		CalculationTimeMs: 3,
	}
}

func TestRecorder_Record(t *testing.T) {
	store := &memoryStore{}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	r := NewRecorder(store, WithClock(func() time.Time { return at }))

	score := highScore()
	r.Record(context.Background(), score)

	require.Equal(t, 1, store.count())
	rec := store.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "tx-1", rec.TransactionID)
	assert.Equal(t, 450, rec.Score)
	assert.Equal(t, domain.RiskHigh, rec.Level)
	assert.Equal(t, score.ReasonCodes, rec.ReasonCodes)
	assert.Equal(t, int64(3), rec.CalculationTimeMs)
	assert.Equal(t, at.UTC(), rec.CreatedAt)
	assert.Equal(t, domain.DefaultAuditActor, rec.CreatedBy)

	rec.ReasonCodes[0] = "CHANGED"
	assert.Equal(t, domain.ReasonHighRiskCountry, score.ReasonCodes[0])
}

func TestRecorder_Disabled(t *testing.T) {
	store := &memoryStore{}
	r := NewRecorder(store, WithEnabled(false))

	r.Record(context.Background(), highScore())

	assert.False(t, r.Enabled())
	assert.Zero(t, store.count())
}

func TestRecorder_CustomActor(t *testing.T) {
	store := &memoryStore{}
	r := NewRecorder(store, WithActor("batch-rescore"))

	r.Record(context.Background(), highScore())

	require.Equal(t, 1, store.count())
	assert.Equal(t, "batch-rescore", store.records[0].CreatedBy)
}

func TestRecorder_StoreFailure(t *testing.T) {
	m := metrics.New()
	store := &memoryStore{err: errors.New("disk full")}
	r := NewRecorder(store, WithMetrics(m))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), highScore())
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures))
}

func TestRecorder_DuplicateTransaction(t *testing.T) {
	repo := newTestRepo(t)
	m := metrics.New()
	r := NewRecorder(repo, WithMetrics(m))
	ctx := context.Background()

	r.Record(ctx, highScore())
	second := highScore()
	second.Score = 999
	r.Record(ctx, second)

	got, err := repo.GetRiskScore(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, 450, got.Score)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures))
}

func TestRecorder_PublishesEvents(t *testing.T) {
	tests := []struct {
		name      string
		level     domain.RiskLevel
		wantAlert bool
	}{
		{"low score, recorded only", domain.RiskLow, false},
		{"medium score, recorded only", domain.RiskMedium, false},
		{"high score, recorded and alert", domain.RiskHigh, true},
		{"critical score, recorded and alert", domain.RiskCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.NewChannelBus(10)
			defer b.Close()
			ctx := context.Background()

			recorded := make(chan *domain.Message, 1)
			alerts := make(chan *domain.Message, 1)
			_, err := b.Subscribe(ctx, domain.TopicScoreRecorded, func(_ context.Context, msg *domain.Message) error {
				recorded <- msg
				return nil
			})
			require.NoError(t, err)
			_, err = b.Subscribe(ctx, domain.TopicScoreAlert, func(_ context.Context, msg *domain.Message) error {
				alerts <- msg
				return nil
			})
			require.NoError(t, err)

			r := NewRecorder(&memoryStore{}, WithEventBus(b))
			score := highScore()
			score.Level = tt.level
			r.Record(ctx, score)

			select {
			case msg := <-recorded:
				var rec domain.AuditRecord
				require.NoError(t, json.Unmarshal(msg.Payload, &rec))
				assert.Equal(t, "tx-1", rec.TransactionID)
				assert.Equal(t, tt.level, rec.Level)
			case <-time.After(time.Second):
				t.Fatal("no recorded event")
			}

			if tt.wantAlert {
				select {
				case <-alerts:
				case <-time.After(time.Second):
					t.Fatal("no alert event")
				}
				return
			}
			select {
			case <-alerts:
				t.Fatal("unexpected alert event")
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestRecorder_NoEventsOnStoreFailure(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	events := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, domain.TopicScoreRecorded, func(_ context.Context, msg *domain.Message) error {
		events <- msg
		return nil
	})
	require.NoError(t, err)

	r := NewRecorder(&memoryStore{err: errors.New("unavailable")}, WithEventBus(b))
	r.Record(ctx, highScore())

	select {
	case <-events:
		t.Fatal("event published for an unsaved record")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchAlerts(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()
	m := metrics.New()

	w, err := WatchAlerts(ctx, b, m)
	require.NoError(t, err)
	defer w.Stop()

	r := NewRecorder(&memoryStore{}, WithEventBus(b))
	score := highScore()
	score.Level = domain.RiskCritical
	r.Record(ctx, score)
	r.Record(ctx, domain.RiskScore{TransactionID: "tx-low", Level: domain.RiskLow, ReasonCodes: []string{}})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ScoreAlerts.WithLabelValues("CRITICAL")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScoreAlerts.WithLabelValues("LOW")))
}

func TestAlertWatcher_RejectsMalformedPayload(t *testing.T) {
	w := &AlertWatcher{}
	err := w.handle(context.Background(), &domain.Message{ID: "m-1", Payload: []byte("not json")})
	assert.Error(t, err)
}

func TestAlertWatcher_StopsReceiving(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()
	m := metrics.New()

	w, err := WatchAlerts(ctx, b, m)
	require.NoError(t, err)
	require.NoError(t, w.Stop())

	payload, err := json.Marshal(NewRecord(highScore(), "", time.Now()))
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, domain.TopicScoreAlert, payload))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScoreAlerts.WithLabelValues("HIGH")))
}
