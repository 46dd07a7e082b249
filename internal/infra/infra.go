// Package infra provisions the message bus topology once per cluster. Nodes
// race for a Redis lock; the winner declares, the others wait until the
// topology exists.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hookdeck/hostnode/internal/mqinfra"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/redislock"
)

const (
	lockKey      = "hostnode:lock:infra"
	lockAttempts = 5
	lockDelay    = 5 * time.Second
	lockTTL      = 10 * time.Second
)

var (
	// ErrInfraNotFound is returned when the topology is missing and auto
	// provisioning is disabled.
	ErrInfraNotFound   = errors.New("message bus topology does not exist and auto provisioning is disabled (MQS_AUTO_PROVISION=false)")
	ErrLockNotAcquired = errors.New("failed to acquire infra lock")
)

type Lock = redislock.Lock

// InfraProvider performs the actual topology operations.
type InfraProvider interface {
	Exist(ctx context.Context) (bool, error)
	Declare(ctx context.Context) error
	Teardown(ctx context.Context) error
}

type Config struct {
	MQ            *mqinfra.MQInfraConfig
	AutoProvision *bool
}

func (cfg *Config) SetSensiblePolicyDefaults() {
	if cfg.MQ != nil && cfg.MQ.Policy.RetryLimit == 0 {
		cfg.MQ.Policy.RetryLimit = 5
	}
}

type Infra struct {
	lock         Lock
	provider     InfraProvider
	shouldManage bool
	attempts     int
	delay        time.Duration
}

type Option func(*Infra)

// WithLockRetry overrides how often and how far apart a node retries the
// lock while another node is declaring.
func WithLockRetry(attempts int, delay time.Duration) Option {
	return func(i *Infra) {
		i.attempts = attempts
		i.delay = delay
	}
}

// mqProvider adapts mqinfra to InfraProvider.
type mqProvider struct {
	mq mqinfra.MQInfra
}

func (p *mqProvider) Exist(ctx context.Context) (bool, error) {
	return p.mq.Exist(ctx)
}

func (p *mqProvider) Declare(ctx context.Context) error {
	return p.mq.Declare(ctx)
}

func (p *mqProvider) Teardown(ctx context.Context) error {
	return p.mq.TearDown(ctx)
}

func NewInfra(cfg Config, redisClient redis.Cmdable, opts ...Option) *Infra {
	cfg.SetSensiblePolicyDefaults()

	shouldManage := true
	if cfg.AutoProvision != nil {
		shouldManage = *cfg.AutoProvision
	}

	lock := redislock.New(redisClient,
		redislock.WithKey(lockKey),
		redislock.WithTTL(lockTTL),
	)
	return NewInfraWithProvider(lock, &mqProvider{mq: mqinfra.New(cfg.MQ)}, shouldManage, opts...)
}

// Init declares the topology when auto provisioning is on and only verifies
// it otherwise.
func Init(ctx context.Context, cfg Config, redisClient redis.Cmdable, opts ...Option) error {
	infra := NewInfra(cfg, redisClient, opts...)
	if infra.shouldManage {
		return infra.Declare(ctx)
	}
	return infra.Verify(ctx)
}

func NewInfraWithProvider(lock Lock, provider InfraProvider, shouldManage bool, opts ...Option) *Infra {
	infra := &Infra{
		lock:         lock,
		provider:     provider,
		shouldManage: shouldManage,
		attempts:     lockAttempts,
		delay:        lockDelay,
	}
	for _, opt := range opts {
		opt(infra)
	}
	return infra
}

func (infra *Infra) Declare(ctx context.Context) error {
	for attempt := 0; attempt < infra.attempts; attempt++ {
		shouldDeclare, hasLocked, err := infra.shouldDeclareAndAcquireLock(ctx)
		if err != nil {
			return err
		}
		if !shouldDeclare {
			return nil
		}
		if hasLocked {
			return infra.declareLocked(ctx)
		}

		if attempt < infra.attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(infra.delay):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrLockNotAcquired, infra.attempts)
}

func (infra *Infra) declareLocked(ctx context.Context) (err error) {
	defer func() {
		unlocked, unlockErr := infra.lock.Unlock(context.WithoutCancel(ctx))
		if unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release infra lock: %w", unlockErr))
		} else if !unlocked && err == nil {
			err = errors.New("infra lock expired while declaring")
		}
	}()
	return infra.provider.Declare(ctx)
}

func (infra *Infra) Verify(ctx context.Context) error {
	exists, err := infra.provider.Exist(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify infrastructure exists: %w", err)
	}
	if !exists {
		return ErrInfraNotFound
	}
	return nil
}

func (infra *Infra) Teardown(ctx context.Context) error {
	return infra.provider.Teardown(ctx)
}

func (infra *Infra) shouldDeclareAndAcquireLock(ctx context.Context) (shouldDeclare bool, hasLocked bool, err error) {
	exists, err := infra.provider.Exist(ctx)
	if err != nil {
		return false, false, fmt.Errorf("failed to check if infra exists: %w", err)
	}
	if exists {
		return false, false, nil
	}

	hasLocked, err = infra.lock.AttemptLock(ctx)
	if err != nil {
		return true, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return true, hasLocked, nil
}
