package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-messenger/pkg/broker"
	"github.com/zoff-tech/go-messenger/pkg/telemetry"
)

// ConsumerTag identifies the receiver's subscription on the broker.
const ConsumerTag = "consumer"

var (
	ErrDecode = errors.New("message is not valid UTF-8")
	ErrAck    = errors.New("failed to acknowledge message")
)

// Consumer is the part of a broker session used to receive messages.
type Consumer interface {
	Consume(ctx context.Context, queue, consumerTag string, handler broker.Handler) error
}

// Receiver logs every text message delivered on a queue and acknowledges it.
type Receiver struct {
	consumer Consumer
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewReceiver(consumer Consumer, log *slog.Logger) *Receiver {
	return &Receiver{
		consumer: consumer,
		log:      log,
		tracer:   otel.Tracer(telemetry.TracerName),
	}
}

// Run consumes the queue until the subscription ends or ctx is done, which
// both return nil. An acknowledgement failure stops the loop and is returned.
// Payloads that are not UTF-8 are logged and skipped without acknowledgement.
func (r *Receiver) Run(ctx context.Context, queue string) error {
	err := r.consumer.Consume(ctx, queue, ConsumerTag, func(ctx context.Context, d broker.Delivery) error {
		return r.handle(ctx, queue, d)
	})
	if err != nil {
		return err
	}

	r.log.Info("Consumer stopped", "queue", queue)
	return nil
}

func (r *Receiver) handle(ctx context.Context, queue string, d broker.Delivery) error {
	// Continue the trace started by the sender, if any
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(d.Headers))
	ctx, span := r.tracer.Start(ctx, "Receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingOperationProcess,
			semconv.MessagingDestinationKindQueue,
			semconv.MessagingDestinationKey.String(queue),
			semconv.MessagingMessageIDKey.String(d.ID),
			semconv.MessagingMessagePayloadSizeBytesKey.Int(len(d.Body)),
		),
	)
	defer span.End()

	text, err := decodeText(d.Body)
	if err != nil {
		r.log.Error("Error parsing message data", "queue", queue, "message_id", d.ID, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.Skip()
		return nil
	}

	r.log.Info("Received message", "body", text, "queue", queue, "message_id", d.ID)

	if err := d.Ack(ctx); err != nil {
		err = fmt.Errorf("%w %s: %w", ErrAck, d.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// decodeText returns body as a string, or an ErrDecode naming the offset of
// the first invalid byte.
func decodeText(body []byte) (string, error) {
	for i := 0; i < len(body); {
		r, size := utf8.DecodeRune(body[i:])
		if r == utf8.RuneError && size <= 1 {
			return "", fmt.Errorf("%w: invalid byte at offset %d", ErrDecode, i)
		}
		i += size
	}
	return string(body), nil
}
