// Package timer implements a cancellable repeating call.
//
// A LoopingTimer invokes its callback every interval until stopped. Ticks are
// strictly sequential: the next interval is measured from the end of the
// previous invocation, so a slow callback delays the schedule instead of
// overlapping with itself. Errors and panics raised by the callback are logged
// and reported to the optional error handler; they never end the loop.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidInterval = errors.New("timer interval must be positive")
	ErrAlreadyStarted  = errors.New("timer already started")
)

// Func is the callback run on every tick.
type Func func(ctx context.Context) error

// Logger is the subset of the zap API the timer needs.
type Logger interface {
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

type LoopingTimer struct {
	name    string
	fn      Func
	logger  Logger
	onError func(err error)
	now     bool

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	running     atomic.Bool
	invocations atomic.Int64
}

type Option func(*LoopingTimer)

// WithLogger sets the logger used for callback failures.
func WithLogger(logger Logger) Option {
	return func(t *LoopingTimer) {
		t.logger = logger
	}
}

// WithErrorHandler registers a hook called with every callback failure,
// including recovered panics.
func WithErrorHandler(fn func(err error)) Option {
	return func(t *LoopingTimer) {
		t.onError = fn
	}
}

// WithFireImmediately makes the first invocation happen right after Start
// instead of one interval later.
func WithFireImmediately() Option {
	return func(t *LoopingTimer) {
		t.now = true
	}
}

func New(name string, fn Func, opts ...Option) *LoopingTimer {
	t := &LoopingTimer{
		name:   name,
		fn:     fn,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *LoopingTimer) Name() string {
	return t.name
}

// Start launches the loop. Invocations run on a context derived from ctx that
// is not cancelled by Stop, so an in-flight invocation always runs to
// completion.
func (t *LoopingTimer) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.loop(loopCtx, context.WithoutCancel(ctx), interval)
	return nil
}

func (t *LoopingTimer) loop(loopCtx, tickCtx context.Context, interval time.Duration) {
	defer close(t.done)
	defer t.running.Store(false)

	if t.now {
		t.fire(tickCtx)
	}

	next := time.NewTimer(interval)
	defer next.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-next.C:
		}

		// Stop may have raced with the timer firing.
		if loopCtx.Err() != nil {
			return
		}
		t.fire(tickCtx)
		next.Reset(interval)
	}
}

func (t *LoopingTimer) fire(ctx context.Context) {
	t.invocations.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("timer %s: callback panicked: %v", t.name, r)
			t.logger.Error("timer callback panicked", zap.String("timer", t.name), zap.Any("panic", r))
			if t.onError != nil {
				t.onError(err)
			}
		}
	}()

	if err := t.fn(ctx); err != nil {
		t.logger.Error("timer callback failed", zap.String("timer", t.name), zap.Error(err))
		if t.onError != nil {
			t.onError(err)
		}
	}
}

// Stop cancels all future invocations. It may be called any number of times
// and before Start.
func (t *LoopingTimer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// Wait blocks until the loop has exited. It returns immediately when the
// timer was never started. Wait does not stop the timer.
func (t *LoopingTimer) Wait() error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return nil
}

// Running reports whether the loop goroutine is alive.
func (t *LoopingTimer) Running() bool {
	return t.running.Load()
}

// Invocations returns how many times the callback has been started.
func (t *LoopingTimer) Invocations() int64 {
	return t.invocations.Load()
}
