package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-messenger/pkg/config"
	"github.com/zoff-tech/go-messenger/pkg/telemetry"
)

// defaultExchange routes messages straight to the queue named by the routing key.
const defaultExchange = ""

type RabbitMQBrokerCreator func(ctx context.Context, settings *config.Settings, log *slog.Logger) (MessageBroker, error)

var NewRabbitMqBroker RabbitMQBrokerCreator = func(ctx context.Context, settings *config.Settings, log *slog.Logger) (MessageBroker, error) {
	conn, err := dialAMQP(settings.AMQPAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	session, err := newRabbitMqSession(conn, settings, log)
	if err != nil {
		return nil, err
	}
	return session, nil
}

type rabbitMqBroker struct {
	connection amqpConnection
	channel    amqpChannel
	queue      amqp.Queue
	confirms   bool
	log        *slog.Logger
}

// newRabbitMqSession opens a channel on conn and declares the settings' queue
// with the library defaults: not durable, not exclusive, not auto-deleted.
func newRabbitMqSession(conn amqpConnection, settings *config.Settings, log *slog.Logger) (*rabbitMqBroker, error) {
	watchConnection(conn, log)

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrChannel, err)
	}

	if settings.Broker.PublisherConfirms {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("%w: enable publisher confirms: %w", ErrChannel, err)
		}
	}

	queue, err := ch.QueueDeclare(
		settings.QueueName, // name
		false,              // durable
		false,              // auto-deleted
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrQueueDeclare, err)
	}
	log.Debug("declared queue", "queue", queue.Name, "messages", queue.Messages, "consumers", queue.Consumers)

	return &rabbitMqBroker{
		connection: conn,
		channel:    ch,
		queue:      queue,
		confirms:   settings.Broker.PublisherConfirms,
		log:        log,
	}, nil
}

func (r *rabbitMqBroker) Publish(ctx context.Context, queue string, data []byte, headers map[string]string) (PublishReceipt, error) {
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindQueue,
			semconv.MessagingDestinationKey.String(queue),
			semconv.MessagingRabbitmqRoutingKeyKey.String(queue),
		),
	)
	defer span.End()

	// Inject the trace context into the message headers
	amqpHeaders := toTable(injectTraceContext(ctx, headers))

	confirm, err := r.channel.Publish(
		ctx, defaultExchange, queue, false, false,
		amqp.Publishing{
			Headers: amqpHeaders,
			Body:    data,
		},
	)
	if err != nil {
		recordError(span, err)
		return PublishReceipt{}, err
	}

	receipt := PublishReceipt{Queue: queue, Size: len(data)}

	if confirm != nil {
		receipt.DeliveryTag = confirm.DeliveryTag()
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			recordError(span, err)
			return receipt, err
		}
		if !acked {
			err := fmt.Errorf("broker rejected delivery %d", receipt.DeliveryTag)
			recordError(span, err)
			return receipt, err
		}
		receipt.Confirmed = true
	}

	span.SetAttributes(
		semconv.MessagingMessagePayloadSizeBytesKey.Int(len(data)),
	)

	return receipt, nil
}

// Consume reads from queue, or from the session's declared queue when queue is
// empty and the broker picked the name.
func (r *rabbitMqBroker) Consume(ctx context.Context, queue, consumerTag string, handler Handler) error {
	if queue == "" {
		queue = r.queue.Name
	}

	deliveries, err := r.channel.Consume(
		queue,
		consumerTag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConsume, err)
	}
	r.log.Info("Consumer created for queue", "queue", queue, "consumer_tag", consumerTag)

	for {
		select {
		case <-ctx.Done():
			return nil

		case d, ok := <-deliveries:
			if !ok {
				// Subscription closed by the broker or the connection went away
				return nil
			}
			if err := handler(ctx, toDelivery(d)); err != nil {
				return err
			}
		}
	}
}

func (r *rabbitMqBroker) Close() error {
	return errors.Join(r.channel.Close(), r.connection.Close())
}

func toDelivery(d amqp.Delivery) Delivery {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}

	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	// No skip hook: an unacknowledged delivery stays with this consumer
	// until the channel closes.
	return NewDelivery(id, d.Body, headers, func(context.Context) error {
		return d.Ack(false)
	})
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

// injectTraceContext returns a copy of headers carrying the span context of ctx.
func injectTraceContext(ctx context.Context, headers map[string]string) map[string]string {
	carrier := make(propagation.MapCarrier, len(headers))
	for k, v := range headers {
		carrier[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
