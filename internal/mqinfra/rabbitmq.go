package mqinfra

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
)

type infraRabbitMQ struct {
	cfg *MQInfraConfig
}

func (infra *infraRabbitMQ) dlq() string {
	return infra.cfg.RabbitMQ.Exchange + ".dlq"
}

func (infra *infraRabbitMQ) dial() (*amqp091.Connection, error) {
	if err := infra.cfg.RabbitMQ.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return amqp091.Dial(infra.cfg.RabbitMQ.ServerURL)
}

// Exist checks the exchanges and the dead-letter queue with passive
// declarations. A failed passive declare closes the channel, so each check
// gets its own.
func (infra *infraRabbitMQ) Exist(ctx context.Context) (bool, error) {
	conn, err := infra.dial()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	checks := []func(ch *amqp091.Channel) error{
		func(ch *amqp091.Channel) error {
			return ch.ExchangeDeclarePassive(infra.cfg.RabbitMQ.Exchange, "topic", true, false, false, false, nil)
		},
		func(ch *amqp091.Channel) error {
			return ch.ExchangeDeclarePassive(infra.cfg.RabbitMQ.DeadLetterExchange(), "topic", true, false, false, false, nil)
		},
		func(ch *amqp091.Channel) error {
			_, err := ch.QueueDeclarePassive(infra.dlq(), true, false, false, false, amqp091.Table{
				"x-queue-type": "quorum",
			})
			return err
		},
	}
	for _, check := range checks {
		ch, err := conn.Channel()
		if err != nil {
			return false, err
		}
		err = check(ch)
		if err != nil {
			var amqpErr *amqp091.Error
			if errors.As(err, &amqpErr) && amqpErr.Code == amqp091.NotFound {
				return false, nil
			}
			return false, err
		}
		ch.Close()
	}
	return true, nil
}

func (infra *infraRabbitMQ) Declare(ctx context.Context) error {
	conn, err := infra.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	exchange := infra.cfg.RabbitMQ.Exchange
	dlx := infra.cfg.RabbitMQ.DeadLetterExchange()
	dlq := infra.dlq()

	// Topic exchange every bus topic is routed through
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return err
	}

	// Dead-letter exchange & queue collecting rejected messages of any topic
	if err := ch.ExchangeDeclare(
		dlx,     // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		return err
	}
	args := amqp091.Table{
		"x-queue-type": "quorum",
	}
	if infra.cfg.Policy.RetryLimit > 0 {
		args["x-delivery-limit"] = infra.cfg.Policy.RetryLimit
	}
	if _, err := ch.QueueDeclare(
		dlq,   // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	); err != nil {
		return err
	}
	return ch.QueueBind(
		dlq, // queue name
		"#", // routing key
		dlx, // exchange
		false,
		nil,
	)
}

func (infra *infraRabbitMQ) TearDown(ctx context.Context) error {
	conn, err := infra.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDelete(
		infra.dlq(), // name
		false,       // ifUnused
		false,       // ifEmpty
		false,       // noWait
	); err != nil {
		return err
	}
	if err := ch.ExchangeDelete(
		infra.cfg.RabbitMQ.DeadLetterExchange(), // name
		false,                                   // ifUnused
		false,                                   // noWait
	); err != nil {
		return err
	}
	return ch.ExchangeDelete(
		infra.cfg.RabbitMQ.Exchange, // name
		false,                       // ifUnused
		false,                       // noWait
	)
}
