package testinfra

import (
	"context"
	"log"
	"sync"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

var rabbitmqOnce sync.Once

// EnsureRabbitMQ returns an amqp:// URL, starting a container the first time
// it is needed.
func EnsureRabbitMQ() string {
	cfg := ReadConfig()
	if cfg.RabbitMQURL == "" {
		rabbitmqOnce.Do(func() {
			startRabbitMQTestContainer(cfg)
		})
	}
	return cfg.RabbitMQURL
}

func startRabbitMQTestContainer(cfg *Config) {
	ctx := context.Background()

	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	if err != nil {
		panic(err)
	}

	amqpURL, err := rabbitmqContainer.AmqpURL(ctx)
	if err != nil {
		panic(err)
	}
	log.Printf("RabbitMQ running at %s", amqpURL)
	cfg.RabbitMQURL = amqpURL
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := rabbitmqContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
