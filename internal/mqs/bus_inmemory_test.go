package mqs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/mqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus(t *testing.T) {
	t.Parallel()
	testBus(t, func(t *testing.T) mqs.Bus {
		return mqs.NewInMemoryBus()
	})
}

func TestInMemoryBus_DropsWithoutSubscriber(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := mqs.NewInMemoryBus()
	cleanup, err := bus.Init(ctx)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, bus.Publish(ctx, "nobody", []byte("lost")))

	sub, err := bus.Subscribe(ctx, "nobody")
	require.NoError(t, err)
	defer sub.Shutdown(ctx)

	receiveCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = sub.Receive(receiveCtx)
	assert.Error(t, err)
}

func TestInMemoryBus_EmptyTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := mqs.NewInMemoryBus()
	assert.ErrorIs(t, bus.Publish(ctx, "", []byte("x")), mqs.ErrEmptyTopic)
	_, err := bus.Subscribe(ctx, "")
	assert.ErrorIs(t, err, mqs.ErrEmptyTopic)
}

// testBus runs the behaviour every Bus implementation shares.
func testBus(t *testing.T, newBus func(t *testing.T) mqs.Bus) {
	t.Run("delivers to topic subscriber", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus(t)
		cleanup, err := bus.Init(ctx)
		require.NoError(t, err)
		defer cleanup()

		sub, err := bus.Subscribe(ctx, "compute")
		require.NoError(t, err)
		defer sub.Shutdown(ctx)

		other, err := bus.Subscribe(ctx, "scheduler")
		require.NoError(t, err)
		defer other.Shutdown(ctx)

		require.NoError(t, bus.Publish(ctx, "compute", []byte("hello")))

		receiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		msg, err := sub.Receive(receiveCtx)
		require.NoError(t, err)
		msg.Ack()
		assert.Equal(t, "hello", string(msg.Body))

		emptyCtx, emptyCancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer emptyCancel()
		_, err = other.Receive(emptyCtx)
		assert.Error(t, err, "other topics must not see the message")
	})

	t.Run("subscribers of one topic compete", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus(t)
		cleanup, err := bus.Init(ctx)
		require.NoError(t, err)
		defer cleanup()

		subA, err := bus.Subscribe(ctx, "shared")
		require.NoError(t, err)
		defer subA.Shutdown(ctx)
		subB, err := bus.Subscribe(ctx, "shared")
		require.NoError(t, err)
		defer subB.Shutdown(ctx)

		const total = 10
		for i := 0; i < total; i++ {
			require.NoError(t, bus.Publish(ctx, "shared", []byte("m")))
		}

		receiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var (
			mu       sync.Mutex
			received int
			wg       sync.WaitGroup
		)
		done := make(chan struct{})
		for _, sub := range []mqs.Subscription{subA, subB} {
			wg.Add(1)
			go func(sub mqs.Subscription) {
				defer wg.Done()
				for {
					msg, err := sub.Receive(receiveCtx)
					if err != nil {
						return
					}
					msg.Ack()
					mu.Lock()
					received++
					if received == total {
						close(done)
					}
					mu.Unlock()
				}
			}(sub)
		}

		select {
		case <-done:
		case <-receiveCtx.Done():
			t.Fatal("timed out waiting for messages")
		}
		cancel()
		wg.Wait()

		assert.Equal(t, total, received)
	})
}

func TestInMemoryBus_CleanupAfterInitContextCancelled(t *testing.T) {
	t.Parallel()

	initCtx, cancelInit := context.WithCancel(context.Background())
	bus := mqs.NewInMemoryBus()
	cleanup, err := bus.Init(initCtx)
	require.NoError(t, err)

	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, "work")
	require.NoError(t, err)

	cancelInit()
	cleanup()

	receiveCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = sub.Receive(receiveCtx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded, "subscription should be shut down, not left waiting")
}
