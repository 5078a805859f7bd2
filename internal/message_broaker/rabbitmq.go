package message_broaker

import (
	"context"

	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ MessageBroker = (*RabbitMQ)(nil)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	exchange    string
	routingKey  string
	contentType string
}

// NewRabbitMQ dials the broker and declares a durable direct exchange and
// queue bound by the configured routing key.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq: dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "rabbitmq: open channel")
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "rabbitmq: declare exchange %q", cfg.Exchange)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "rabbitmq: declare queue %q", cfg.Queue)
	}

	// The default exchange cannot be bound; it already routes by queue name.
	if cfg.Exchange != "" {
		if err := ch.QueueBind(
			cfg.Queue,
			cfg.RoutingKey,
			cfg.Exchange,
			false,
			nil,
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, errors.Wrapf(err, "rabbitmq: bind queue %q", cfg.Queue)
		}
	}

	return newRabbitMQ(conn, ch, cfg), nil
}

func newRabbitMQ(conn *amqp.Connection, ch *amqp.Channel, cfg config.RabbitMQConfig) *RabbitMQ {
	routingKey := cfg.RoutingKey
	if cfg.Exchange == "" {
		routingKey = cfg.Queue
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		queueName:   cfg.Queue,
		exchange:    cfg.Exchange,
		routingKey:  routingKey,
		contentType: contentType,
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, message []byte) error {
	if err := r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		r.publishing(message),
	); err != nil {
		return errors.Wrap(err, "rabbitmq: publish")
	}
	return nil
}

func (r *RabbitMQ) publishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  r.contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         body,
	}
}

func (r *RabbitMQ) Consume(ctx context.Context) (<-chan []byte, error) {
	msgs, err := r.channel.Consume(
		r.queueName,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "rabbitmq: consume %q", r.queueName)
	}

	out := make(chan []byte, 1000)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
