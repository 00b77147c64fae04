package broker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmation is the broker's pending answer to one publish on a channel in
// confirm mode.
type confirmation interface {
	DeliveryTag() uint64
	WaitContext(ctx context.Context) (bool, error)
}

// amqpChannel is the subset of *amqp.Channel the session uses. Publish returns
// a nil confirmation unless the channel is in confirm mode.
type amqpChannel interface {
	Confirm(noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmation, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type channelAdapter struct {
	ch *amqp.Channel
}

func (c *channelAdapter) Confirm(noWait bool) error {
	return c.ch.Confirm(noWait)
}

func (c *channelAdapter) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c *channelAdapter) Publish(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil || dc == nil {
		return nil, err
	}
	return deferredConfirmation{dc: dc}, nil
}

func (c *channelAdapter) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (c *channelAdapter) Close() error {
	return c.ch.Close()
}

type deferredConfirmation struct {
	dc *amqp.DeferredConfirmation
}

func (d deferredConfirmation) DeliveryTag() uint64 {
	return d.dc.DeliveryTag
}

func (d deferredConfirmation) WaitContext(ctx context.Context) (bool, error) {
	return d.dc.WaitContext(ctx)
}

// amqpConnection is the subset of *amqp.Connection the session uses.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type connectionAdapter struct {
	conn *amqp.Connection
}

func (c *connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &channelAdapter{ch: ch}, nil
}

func (c *connectionAdapter) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *connectionAdapter) Close() error {
	return c.conn.Close()
}

// dialAMQP opens the AMQP connection. Tests replace it to avoid a live broker.
var dialAMQP = func(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &connectionAdapter{conn: conn}, nil
}

// watchConnection logs when the broker drops the connection. Nothing is
// received on a clean Close.
func watchConnection(conn amqpConnection, log *slog.Logger) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for err := range notifyClose {
			log.Error("RabbitMQ connection closed", "err", err)
		}
	}()
}
