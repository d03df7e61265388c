// Package amqppub publishes run events to an AMQP exchange.
package amqppub

import (
	"context"
	"encoding/json"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/output"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeType     = "topic"
	durable          = true
	deleteWhenUnused = false
	internal         = false
	noWait           = false
	mandatory        = false
	immediate        = false
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	key      string
	log      *logrus.Entry
}

var _ output.Publisher = (*Publisher)(nil)

// Dial connects to the broker and declares the exchange.
func Dial(cfg config.AMQPConfig, log *logrus.Entry) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}
	err = ch.ExchangeDeclare(
		cfg.Exchange,
		exchangeType,
		durable,
		deleteWhenUnused,
		internal,
		noWait,
		nil, // arguments
	)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to declare exchange %s", cfg.Exchange)
	}

	log.WithField("exchange", cfg.Exchange).Info("Connected to broker")
	p := newPublisher(ch, cfg, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, cfg config.AMQPConfig, log *logrus.Entry) *Publisher {
	return &Publisher{channel: ch, exchange: cfg.Exchange, key: cfg.RoutingKey, log: log}
}

// RoutingKey returns the key an event is published with: the configured key
// followed by the event type.
func (p *Publisher) RoutingKey(e output.Event) string {
	if p.key == "" {
		return e.Type
	}
	return p.key + "." + e.Type
}

func (p *Publisher) Publish(ctx context.Context, e output.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.RoutingKey(e),
		mandatory,
		immediate,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.Stamp,
			Type:         e.Type,
			Body:         body,
		},
	)
	return errors.Wrap(err, "failed to publish event")
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
