package mqs

import (
	"context"
	"errors"
	"sync"
	"time"

	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

const inMemoryAckDeadline = 30 * time.Second

// InMemoryBus is a process-local Bus backed by mempubsub. Every topic has a
// single shared subscription so concurrent subscribers split the messages.
// Messages published to a topic nobody has subscribed to yet are dropped.
type InMemoryBus struct {
	mu     sync.Mutex
	topics map[string]*memTopic
}

type memTopic struct {
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	refs         int
}

var _ Bus = (*InMemoryBus)(nil)

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{topics: make(map[string]*memTopic)}
}

func (b *InMemoryBus) Init(ctx context.Context) (func(), error) {
	return func() {
		ctx, cancel := shutdownContext(ctx)
		defer cancel()

		b.mu.Lock()
		defer b.mu.Unlock()
		for name, t := range b.topics {
			if t.subscription != nil {
				t.subscription.Shutdown(ctx)
			}
			t.topic.Shutdown(ctx)
			delete(b.topics, name)
		}
	}, nil
}

func (b *InMemoryBus) getTopic(name string) *memTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memTopic{topic: mempubsub.NewTopic()}
		b.topics[name] = t
	}
	return t
}

func (b *InMemoryBus) Publish(ctx context.Context, topic string, body []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	b.mu.Lock()
	t := b.getTopic(topic)
	b.mu.Unlock()
	return t.topic.Send(ctx, &pubsub.Message{Body: body})
}

func (b *InMemoryBus) Subscribe(ctx context.Context, topic string, opts ...SubscribeOption) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	options := newSubscribeOptions(opts)

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.getTopic(topic)
	if t.subscription == nil {
		t.subscription = mempubsub.NewSubscription(t.topic, inMemoryAckDeadline)
	}
	t.refs++

	return &wrappedSubscription{
		subscription: t.subscription,
		shutdown: func(ctx context.Context) error {
			return b.release(ctx, topic, t, options.transient)
		},
	}, nil
}

// release drops one reference to the topic's subscription. Durable topics
// keep their subscription, and with it any queued messages, like a named
// queue would. Transient topics are torn down with the last reference.
func (b *InMemoryBus) release(ctx context.Context, name string, t *memTopic, transient bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.refs == 0 {
		return nil
	}
	t.refs--
	if t.refs > 0 || !transient {
		return nil
	}

	sub := t.subscription
	t.subscription = nil
	if b.topics[name] == t {
		delete(b.topics, name)
	}
	var err error
	if sub != nil {
		err = sub.Shutdown(ctx)
	}
	return errors.Join(err, t.topic.Shutdown(ctx))
}
