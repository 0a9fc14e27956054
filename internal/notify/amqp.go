package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carma/internal/config"
	"carma/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher forwards every event as JSON to a topic exchange. The
// routing key is "<routing_key>.<event type>".
type AMQPPublisher struct {
	channel    Channel
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewAMQPPublisher(ch Channel, exchange, routingKey string) *AMQPPublisher {
	return &AMQPPublisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// DialAMQP opens a connection and channel and declares the exchange.
// Closing the returned connection also closes the channel.
func DialAMQP(cfg config.AMQPConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.Exchange, err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) Accepts(string) bool { return true }

func (p *AMQPPublisher) Deliver(ctx context.Context, event *events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey+"."+event.Type,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         event.Type,
			Body:         body,
			Timestamp:    p.now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}
