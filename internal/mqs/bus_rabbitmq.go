package mqs

import (
	"context"
	"errors"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/rabbitpubsub"
)

// RoutingKeyMetadata is the message metadata key carrying the topic. The
// publisher uses it as the AMQP routing key.
const RoutingKeyMetadata = "routing_key"

type RabbitMQConfig struct {
	ServerURL string
	Exchange  string
}

func (c *RabbitMQConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("RabbitMQ server URL is not set")
	}
	if c.Exchange == "" {
		return errors.New("RabbitMQ exchange is not set")
	}
	return nil
}

// QueueName is the queue backing subscriptions to topic.
func (c *RabbitMQConfig) QueueName(topic string) string {
	return c.Exchange + "." + topic
}

func (c *RabbitMQConfig) DeadLetterExchange() string {
	return c.Exchange + ".dlx"
}

// RabbitMQBus publishes every topic to one topic exchange. A subscription
// declares a queue per topic bound with the topic as routing key, so all
// subscribers of a topic across hosts share that queue.
type RabbitMQBus struct {
	config *RabbitMQConfig

	mu    sync.Mutex
	conn  *amqp091.Connection
	topic *pubsub.Topic
}

var _ Bus = (*RabbitMQBus)(nil)

func NewRabbitMQBus(config *RabbitMQConfig) *RabbitMQBus {
	return &RabbitMQBus{config: config}
}

func (b *RabbitMQBus) Init(ctx context.Context) (func(), error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(b.config.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := declareExchange(conn, b.config.Exchange); err != nil {
		conn.Close()
		return nil, err
	}

	b.mu.Lock()
	b.conn = conn
	b.topic = rabbitpubsub.OpenTopic(conn, b.config.Exchange, &rabbitpubsub.TopicOptions{
		KeyName: RoutingKeyMetadata,
	})
	b.mu.Unlock()

	return func() {
		ctx, cancel := shutdownContext(ctx)
		defer cancel()

		b.mu.Lock()
		defer b.mu.Unlock()
		b.topic.Shutdown(ctx)
		conn.Close()
		b.conn = nil
		b.topic = nil
	}, nil
}

func (b *RabbitMQBus) Publish(ctx context.Context, topic string, body []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	b.mu.Lock()
	t := b.topic
	b.mu.Unlock()
	if t == nil {
		return ErrBusNotInitialized
	}
	return t.Send(ctx, &pubsub.Message{
		Body:     body,
		Metadata: map[string]string{RoutingKeyMetadata: topic},
	})
}

func (b *RabbitMQBus) Subscribe(ctx context.Context, topic string, opts ...SubscribeOption) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	options := newSubscribeOptions(opts)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil, ErrBusNotInitialized
	}

	queue := b.config.QueueName(topic)
	if err := b.declareTopicQueue(conn, topic, queue, options.transient); err != nil {
		return nil, err
	}

	subscription := rabbitpubsub.OpenSubscription(conn, queue, nil)
	wrapped := &wrappedSubscription{subscription: subscription}
	if options.transient {
		wrapped.shutdown = func(ctx context.Context) error {
			err := subscription.Shutdown(ctx)
			return errors.Join(err, deleteQueue(conn, queue))
		}
	}
	return wrapped, nil
}

func (b *RabbitMQBus) declareTopicQueue(conn *amqp091.Connection, topic, queue string, transient bool) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	var args amqp091.Table
	if !transient {
		args = amqp091.Table{
			"x-dead-letter-exchange": b.config.DeadLetterExchange(),
		}
	}
	if _, err := ch.QueueDeclare(
		queue,      // name
		!transient, // durable
		transient,  // delete when unused
		false,      // exclusive
		false,      // no-wait
		args,       // arguments
	); err != nil {
		return err
	}
	return ch.QueueBind(
		queue,             // queue name
		topic,             // routing key
		b.config.Exchange, // exchange
		false,
		nil,
	)
}

func declareExchange(conn *amqp091.Connection, exchange string) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

func deleteQueue(conn *amqp091.Connection, queue string) error {
	if conn.IsClosed() {
		return nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	_, err = ch.QueueDelete(queue, false, false, false)
	return err
}
