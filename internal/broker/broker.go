// Package broker fans stored domain events out to an AMQP topic exchange,
// routed by event type, so other services can follow auctions as they run.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/event"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements event.Publisher over AMQP.
type Publisher struct {
	ch       Channel
	conn     io.Closer
	exchange string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Dial connects to url and returns a Publisher for exchange.
func Dial(url, exchange string, logger *slog.Logger, tp trace.TracerProvider) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	p, err := New(ch, exchange, logger, tp)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// New declares a durable topic exchange on ch and returns a Publisher for it.
func New(ch Channel, exchange string, logger *slog.Logger, tp trace.TracerProvider) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/broker"),
	}, nil
}

// Publish sends each event with its type as the routing key.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	ctx, span := p.tracer.Start(ctx, "Publisher.Publish",
		trace.WithAttributes(
			attribute.String("exchange", p.exchange),
			attribute.Int("events", len(events)),
		),
	)
	defer span.End()

	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", e.ID, err)
		}
		msg := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    e.CreatedAt,
			Type:         string(e.Type),
			Headers:      amqp.Table{"aggregate_id": e.AggregateID},
			Body:         body,
		}
		if err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
			return fmt.Errorf("publishing %s to %s: %w", e.Type, p.exchange, err)
		}
		p.logger.DebugContext(ctx, "event published",
			slog.String("type", string(e.Type)),
			slog.String("aggregate_id", e.AggregateID),
		)
	}
	return nil
}

// Close closes the channel and, when Dial opened it, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
