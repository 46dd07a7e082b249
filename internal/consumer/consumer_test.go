package consumer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/consumer"
	"github.com/hookdeck/hostnode/internal/mqs"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	msgs     chan *mqs.Message
	err      error
	shutdown atomic.Bool
}

func (s *fakeSubscription) Receive(ctx context.Context) (*mqs.Message, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, s.err
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSubscription) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	return nil
}

func TestConsumer_HandlesMessages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := mqs.NewInMemoryBus()
	cleanup, err := bus.Init(ctx)
	require.NoError(t, err)
	defer cleanup()

	sub, err := bus.Subscribe(ctx, "compute")
	require.NoError(t, err)

	received := make(chan string, 3)
	c := consumer.New(sub, consumer.MessageHandlerFunc(func(ctx context.Context, msg *mqs.Message) error {
		received <- string(msg.Body)
		return nil
	}), consumer.WithName("test"), consumer.WithLogger(testutil.CreateTestLogger(t)))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, "compute", []byte(body)))
	}

	var got []string
	for len(got) < 3 {
		select {
		case body := <-received:
			got = append(got, body)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_SubscriptionError(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscription{msgs: make(chan *mqs.Message), err: errors.New("connection closed")}
	close(sub.msgs)

	c := consumer.New(sub, consumer.MessageHandlerFunc(func(context.Context, *mqs.Message) error {
		return nil
	}))
	err := c.Run(context.Background())
	assert.EqualError(t, err, "connection closed")
	assert.True(t, sub.shutdown.Load())
}

func TestConsumer_WaitsForInflightHandlers(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscription{msgs: make(chan *mqs.Message, 1)}
	sub.msgs <- &mqs.Message{Body: []byte("slow")}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var (
		mu         sync.Mutex
		finished   bool
		handlerErr error
	)
	c := consumer.New(sub, consumer.MessageHandlerFunc(func(ctx context.Context, msg *mqs.Message) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		finished = true
		handlerErr = ctx.Err()
		return nil
	}), consumer.WithConcurrency(2))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "Run returned before the handler finished")
	assert.NoError(t, handlerErr, "handler context must outlive the consumer context")
}
