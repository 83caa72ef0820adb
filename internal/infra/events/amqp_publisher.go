package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookkeeper_bot/internal/domain/expense"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Message is the JSON body of every expense event.
type Message struct {
	Event       expense.EventKind `json:"event"`
	Record      expense.Record    `json:"record"`
	PublishedAt time.Time         `json:"published_at"`
}

// AMQPPublisher announces record changes on a topic exchange with routing keys
// of the form expense.<kind>.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  channel
	closer   func() error
	exchange string
	logger   *logrus.Entry
	now      func() time.Time
}

func NewAMQPPublisher(url, exchange string, logger *logrus.Entry) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	p.closer = ch.Close
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *logrus.Entry) *AMQPPublisher {
	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends one persistent event message.
func (p *AMQPPublisher) Publish(ctx context.Context, kind expense.EventKind, rec expense.Record) error {
	publishing, err := p.buildPublishing(kind, rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(kind)
	if err := p.channel.PublishWithContext(ctx, p.exchange, key, false, false, publishing); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange":    p.exchange,
		"routing_key": key,
		"session":     rec.Session,
	}).Debug("Published expense event")
	return nil
}

func (p *AMQPPublisher) buildPublishing(kind expense.EventKind, rec expense.Record) (amqp091.Publishing, error) {
	ts := p.now()
	body, err := json.Marshal(Message{Event: kind, Record: rec, PublishedAt: ts.UTC()})
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    ts,
		Body:         body,
	}, nil
}

// RoutingKey returns the topic routing key for an event kind.
func RoutingKey(kind expense.EventKind) string {
	return "expense." + string(kind)
}

// Close closes the channel and the connection, reporting both failures.
func (p *AMQPPublisher) Close() error {
	var chErr, connErr error
	if p.closer != nil {
		if err := p.closer(); err != nil {
			chErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			connErr = fmt.Errorf("close connection: %w", err)
		}
	}
	return errors.Join(chErr, connErr)
}
