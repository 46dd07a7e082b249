// Package mqs is the topic-addressed message bus. Publishing to a topic
// delivers the message to the subscribers of that topic; subscribers of the
// same topic compete for messages the way consumers of one queue do.
package mqs

import (
	"context"
	"errors"
	"time"

	"gocloud.dev/pubsub"
)

// ShutdownTimeout bounds the topic and subscription shutdown run by the
// cleanup func Init returns.
const ShutdownTimeout = 10 * time.Second

var (
	ErrBusNotInitialized = errors.New("message bus not initialized")
	ErrEmptyTopic        = errors.New("topic must not be empty")
)

type Bus interface {
	// Init opens the underlying connection. The returned func releases it.
	Init(ctx context.Context) (func(), error)
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(ctx context.Context, topic string, opts ...SubscribeOption) (Subscription, error)
}

type Subscription interface {
	Receive(ctx context.Context) (*Message, error)
	Shutdown(ctx context.Context) error
}

type subscribeOptions struct {
	transient bool
}

type SubscribeOption func(*subscribeOptions)

// Transient marks a subscription whose backing queue should disappear once
// the subscriber goes away, e.g. RPC reply topics.
func Transient() SubscribeOption {
	return func(o *subscribeOptions) {
		o.transient = true
	}
}

func newSubscribeOptions(opts []SubscribeOption) subscribeOptions {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Message struct {
	LoggableID string
	Body       []byte

	msg *pubsub.Message
}

func (m *Message) Ack() {
	if m.msg != nil {
		m.msg.Ack()
	}
}

// Nack returns the message to the bus for redelivery when the driver
// supports it and acknowledges it otherwise.
func (m *Message) Nack() {
	if m.msg == nil {
		return
	}
	if m.msg.Nackable() {
		m.msg.Nack()
		return
	}
	m.msg.Ack()
}

type wrappedSubscription struct {
	subscription *pubsub.Subscription
	shutdown     func(ctx context.Context) error
}

func (s *wrappedSubscription) Receive(ctx context.Context) (*Message, error) {
	msg, err := s.subscription.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		LoggableID: msg.LoggableID,
		Body:       msg.Body,
		msg:        msg,
	}, nil
}

func (s *wrappedSubscription) Shutdown(ctx context.Context) error {
	if s.shutdown != nil {
		return s.shutdown(ctx)
	}
	return s.subscription.Shutdown(ctx)
}

// shutdownContext returns a context for cleanup that outlives the
// cancellation of ctx, the context Init was called with.
func shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
}
