package broker

import (
	"context"
	"errors"
)

var (
	ErrConnection   = errors.New("failed to connect to broker")
	ErrChannel      = errors.New("failed to create broker channel")
	ErrQueueDeclare = errors.New("failed to declare a queue")
	ErrConsume      = errors.New("failed to start consumer")
)

// PublishReceipt is what the broker reported back for a published message.
type PublishReceipt struct {
	Queue       string
	MessageID   string // Set by brokers that assign ids, e.g. GCP Pub/Sub
	DeliveryTag uint64 // Set when AMQP publisher confirms are enabled
	Confirmed   bool
	Size        int
}

// Delivery is a single message handed to a consumer.
type Delivery struct {
	ID      string
	Body    []byte
	Headers map[string]string
	ack     func(ctx context.Context) error
	skip    func()
}

// NewDelivery builds a delivery whose Ack calls ack.
func NewDelivery(id string, body []byte, headers map[string]string, ack func(ctx context.Context) error) Delivery {
	return Delivery{ID: id, Body: body, Headers: headers, ack: ack}
}

// Ack tells the broker the delivery was processed and can be dropped.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return errors.New("delivery cannot be acknowledged")
	}
	return d.ack(ctx)
}

// WithSkip returns a copy of the delivery whose Skip calls skip.
func (d Delivery) WithSkip(skip func()) Delivery {
	d.skip = skip
	return d
}

// Skip gives up on the delivery without acknowledging it. Brokers that lease
// messages to the consumer release the lease so later messages keep flowing;
// on AMQP the delivery simply stays unacknowledged.
func (d Delivery) Skip() {
	if d.skip != nil {
		d.skip()
	}
}

// Handler processes one delivery. Returning an error stops the consumer.
type Handler func(ctx context.Context, d Delivery) error

// MessageBroker defines the operations of an established broker session.
type MessageBroker interface {
	// Publish sends data to the named queue with optional headers.
	Publish(ctx context.Context, queue string, data []byte, headers map[string]string) (PublishReceipt, error)
	// Consume subscribes to the queue and calls handler for every delivery. It
	// logs once the subscription is registered and blocks until the
	// subscription ends, ctx is done, or handler fails.
	Consume(ctx context.Context, queue, consumerTag string, handler Handler) error
	// Close cleans up any resources (channels, connections, clients).
	Close() error
}
