package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zoff-tech/go-messenger/pkg/config"
)

// NewBroker opens a session on the configured broker and makes sure the
// settings' queue exists before returning.
func NewBroker(ctx context.Context, settings *config.Settings, log *slog.Logger) (MessageBroker, error) {
	switch settings.Broker.Type {
	case config.BrokerRabbitMQ, "":
		return NewRabbitMqBroker(ctx, settings, log)
	case config.BrokerPubSub:
		return NewPubSubClient(ctx, settings, log)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", settings.Broker.Type)
	}
}
