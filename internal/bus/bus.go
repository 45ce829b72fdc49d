package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
// "none" returns a bus that drops every message.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none", "":
		return NopBus{}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// NopBus discards published messages and never delivers any.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, []byte) error { return nil }

func (NopBus) Subscribe(_ context.Context, topic string, _ domain.MessageHandler) (domain.Subscription, error) {
	return nopSubscription(topic), nil
}

func (NopBus) Ping(context.Context) error { return nil }

func (NopBus) Close() error { return nil }

type nopSubscription string

func (nopSubscription) Unsubscribe() error { return nil }

func (s nopSubscription) Topic() string { return string(s) }
