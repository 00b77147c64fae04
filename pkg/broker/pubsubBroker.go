package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-messenger/pkg/config"
	"github.com/zoff-tech/go-messenger/pkg/telemetry"
)

// PubSubBrokerCreator defines a function type for creating Pub/Sub sessions.
type PubSubBrokerCreator func(ctx context.Context, settings *config.Settings, log *slog.Logger, opts ...option.ClientOption) (MessageBroker, error)

// NewPubSubClient connects to GCP Pub/Sub and makes sure a topic and a
// subscription named after the settings' queue exist. Together they play the
// part of an AMQP queue: messages published before a receiver starts are kept.
var NewPubSubClient PubSubBrokerCreator = func(ctx context.Context, settings *config.Settings, log *slog.Logger, opts ...option.ClientOption) (MessageBroker, error) {
	client, err := pubsub.NewClient(ctx, settings.Broker.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	topic, err := ensureTopic(ctx, client, settings.QueueName)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrQueueDeclare, err)
	}

	if err := ensureSubscription(ctx, client, topic, settings.QueueName); err != nil {
		topic.Stop()
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrQueueDeclare, err)
	}

	return &pubSubBroker{client: client, topic: topic, log: log}, nil
}

type pubSubBroker struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	log    *slog.Logger
}

func ensureTopic(ctx context.Context, client *pubsub.Client, id string) (*pubsub.Topic, error) {
	topic := client.Topic(id)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return topic, nil
	}
	return client.CreateTopic(ctx, id)
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, topic *pubsub.Topic, id string) error {
	exists, err := client.Subscription(id).Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{Topic: topic})
	return err
}

func (p *pubSubBroker) topicFor(queue string) (*pubsub.Topic, func()) {
	if queue == p.topic.ID() {
		return p.topic, func() {}
	}
	topic := p.client.Topic(queue)
	return topic, topic.Stop
}

func (p *pubSubBroker) Publish(ctx context.Context, queue string, data []byte, headers map[string]string) (PublishReceipt, error) {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindTopic,
			semconv.MessagingDestinationKey.String(queue),
		),
	)
	defer span.End()

	// Inject the trace context into the message attributes
	attributes := injectTraceContext(ctx, headers)
	if len(attributes) == 0 {
		attributes = nil
	}

	topic, release := p.topicFor(queue)
	defer release()

	res := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	id, err := res.Get(ctx) // wait for server ack
	if err != nil {
		recordError(span, err)
		return PublishReceipt{}, err
	}

	span.SetAttributes(
		semconv.MessagingMessageIDKey.String(id),
		semconv.MessagingMessagePayloadSizeBytesKey.Int(len(data)),
	)

	return PublishReceipt{Queue: queue, MessageID: id, Confirmed: true, Size: len(data)}, nil
}

func (p *pubSubBroker) Consume(ctx context.Context, queue, consumerTag string, handler Handler) error {
	sub := p.client.Subscription(queue)
	// Hand out one message at a time so the handler sees deliveries in sequence.
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	exists, err := sub.Exists(ctx)
	switch {
	case ctx.Err() != nil:
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrConsume, err)
	case !exists:
		return fmt.Errorf("%w: subscription %q does not exist", ErrConsume, queue)
	}
	p.log.Info("Consumer created for queue", "queue", queue, "consumer_tag", consumerTag)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu         sync.Mutex
		handlerErr error
	)
	err = sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		// A skipped message is nacked: holding its lease would block the
		// subscription, which hands out one message at a time.
		d := NewDelivery(m.ID, m.Data, m.Attributes, func(ctx context.Context) error {
			_, err := m.AckWithResult().Get(ctx)
			return err
		}).WithSkip(m.Nack)
		if err := handler(ctx, d); err != nil {
			mu.Lock()
			if handlerErr == nil {
				handlerErr = err
			}
			mu.Unlock()
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConsume, err)
	}
	return nil
}

func (p *pubSubBroker) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
