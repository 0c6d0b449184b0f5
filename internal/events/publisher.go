// Package events publishes review-resolution events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Defaults used when the configuration leaves them empty.
const (
	DefaultExchange   = "wedding-ledger"
	DefaultRoutingKey = "review.resolved"
	publishTimeout    = 5 * time.Second
)

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("publisher closed")

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements service.ReviewNotifier over a durable topic exchange.
type Publisher struct {
	ch         channel
	conn       *amqp091.Connection
	now        func() time.Time
	exchange   string
	routingKey string
	closed     bool
}

// Dial connects to url and declares the exchange.
func Dial(url, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := newPublisher(ch, exchange, routingKey)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange, routingKey string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}, nil
}

// Message is the JSON body of a published event.
type Message struct {
	Type  string                 `json:"type"`
	Event service.ReviewResolved `json:"event"`
}

// MessageType identifies review-resolution messages.
const MessageType = "review.resolved"

// PublishReviewResolved implements service.ReviewNotifier.
func (p *Publisher) PublishReviewResolved(ctx context.Context, event service.ReviewResolved) error {
	if p.closed {
		return ErrClosed
	}

	body, err := json.Marshal(Message{Type: MessageType, Event: event})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    p.now(),
			Type:         MessageType,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published review resolution",
		"transaction_id", event.TransactionID,
		"outcome", event.Outcome,
		"exchange", p.exchange)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
