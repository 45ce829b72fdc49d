package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// Header names set on every published score event.
const (
	headerMessageID = "Nats-Msg-Id"
	headerTopic     = "Riskscore-Topic"
)

// NATSBus carries score events over NATS (pro tier). Topics are used as
// subjects unchanged. With a queue group configured, each event is handled
// by one service instance.
type NATSBus struct {
	mu    sync.Mutex
	conn  *nats.Conn
	group string
	subs  map[*natsSubscription]struct{}
}

type natsSubscription struct {
	topic  string
	sub    *nats.Subscription
	cancel context.CancelFunc
	bus    *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		conn, err = nats.Connect(cfg.NATSUrl, natsOptions(cfg, wait)...)
		if err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:  conn,
		group: cfg.NATSQueueGroup,
		subs:  make(map[*natsSubscription]struct{}),
	}, nil
}

func natsOptions(cfg domain.EventBusConfig, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("riskscore"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected, score events are buffered", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// Publish sends payload on the subject named by topic, wrapped in the same
// Message envelope the channel bus delivers.
func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("topic is required")
	}

	msg := domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	out := nats.NewMsg(topic)
	out.Data = data
	out.Header.Set(headerMessageID, msg.ID)
	out.Header.Set(headerTopic, topic)

	if err := b.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers messages on topic to handler until the subscription or
// ctx ends. Handler errors are logged.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &natsSubscription{topic: topic, cancel: cancel, bus: b}

	deliver := func(m *nats.Msg) {
		if subCtx.Err() != nil {
			return
		}
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("failed to decode NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(subCtx, &msg); err != nil {
			slog.Error("handler error",
				"topic", topic,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var err error
	if b.group != "" {
		s.sub, err = b.conn.QueueSubscribe(topic, b.group, deliver)
	} else {
		s.sub, err = b.conn.Subscribe(topic, deliver)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-subCtx.Done()
		s.Unsubscribe()
	}()

	return s, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return errors.New("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending score events and subscriptions, then closes the
// connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.cancel()
	}

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *natsSubscription) Unsubscribe() error {
	s.cancel()

	s.bus.mu.Lock()
	_, active := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	if !active || !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
