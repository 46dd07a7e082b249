// Package mqinfra declares and tears down the broker-side topology the
// message bus relies on.
package mqinfra

import (
	"context"
	"fmt"

	"github.com/hookdeck/hostnode/internal/mqs"
)

type MQInfra interface {
	Exist(ctx context.Context) (bool, error)
	Declare(ctx context.Context) error
	TearDown(ctx context.Context) error
}

type MQInfraConfig struct {
	RabbitMQ *mqs.RabbitMQConfig
	Policy   Policy
}

type Policy struct {
	// RetryLimit caps redeliveries of a rejected message before it is
	// dead-lettered.
	RetryLimit int
}

var (
	ErrInvalidConfig = fmt.Errorf("invalid config")
)

// New returns the MQInfra for cfg. The in-memory bus has no topology, so a
// config without a broker yields a no-op implementation.
func New(cfg *MQInfraConfig) MQInfra {
	if cfg == nil || cfg.RabbitMQ == nil {
		return noopInfra{}
	}
	return &infraRabbitMQ{cfg: cfg}
}

func DeclareMQ(ctx context.Context, cfg *MQInfraConfig) error {
	if cfg == nil || cfg.RabbitMQ == nil {
		return ErrInvalidConfig
	}
	return New(cfg).Declare(ctx)
}

func TeardownMQ(ctx context.Context, cfg *MQInfraConfig) error {
	if cfg == nil || cfg.RabbitMQ == nil {
		return ErrInvalidConfig
	}
	return New(cfg).TearDown(ctx)
}

type noopInfra struct{}

func (noopInfra) Exist(context.Context) (bool, error) { return true, nil }
func (noopInfra) Declare(context.Context) error       { return nil }
func (noopInfra) TearDown(context.Context) error      { return nil }
