package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoff-tech/go-messenger/pkg/broker"
)

var ErrPublish = errors.New("failed to publish message")

// Publisher is the part of a broker session used to send messages.
type Publisher interface {
	Publish(ctx context.Context, queue string, data []byte, headers map[string]string) (broker.PublishReceipt, error)
}

// Send publishes message as-is to the queue. The payload is not validated.
func Send(ctx context.Context, publisher Publisher, queue, message string) (broker.PublishReceipt, error) {
	receipt, err := publisher.Publish(ctx, queue, []byte(message), nil)
	if err != nil {
		return receipt, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return receipt, nil
}
