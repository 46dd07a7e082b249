package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrAllWorkersExited = errors.New("all workers have exited unexpectedly")

// Logger is the logging surface the supervisor needs. *logging.Logger
// satisfies it.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// WorkerSupervisor runs workers and tracks their health. A failing worker
// is marked failed but does not bring the others down, so health checks
// can report it while the rest keep serving.
type WorkerSupervisor struct {
	workers         map[string]Worker
	order           []string
	health          *HealthTracker
	logger          Logger
	shutdownTimeout time.Duration
}

type SupervisorOption func(*WorkerSupervisor)

// WithShutdownTimeout bounds how long Run waits for workers after ctx is
// cancelled. Zero waits indefinitely.
func WithShutdownTimeout(timeout time.Duration) SupervisorOption {
	return func(r *WorkerSupervisor) {
		r.shutdownTimeout = timeout
	}
}

func NewWorkerSupervisor(logger Logger, opts ...SupervisorOption) *WorkerSupervisor {
	r := &WorkerSupervisor{
		workers: make(map[string]Worker),
		health:  NewHealthTracker(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a worker. It panics on a duplicate name.
func (r *WorkerSupervisor) Register(w Worker) {
	if _, exists := r.workers[w.Name()]; exists {
		panic(fmt.Sprintf("worker %s already registered", w.Name()))
	}
	r.workers[w.Name()] = w
	r.order = append(r.order, w.Name())
	if p, ok := w.(Prober); ok {
		r.health.AddProbe(w.Name(), p)
	}
	r.logger.Debug("worker registered", zap.String("worker", w.Name()))
}

func (r *WorkerSupervisor) GetHealthTracker() *HealthTracker {
	return r.health
}

// Run starts every worker and blocks until ctx is cancelled or all workers
// have exited. It returns nil after a graceful shutdown, an error when the
// shutdown timeout is exceeded, and ErrAllWorkersExited when every worker
// returned on its own with at least one failure.
func (r *WorkerSupervisor) Run(ctx context.Context) error {
	if len(r.workers) == 0 {
		r.logger.Warn("no workers registered")
		return nil
	}

	r.logger.Info("starting workers", zap.Int("count", len(r.workers)))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, name := range r.order {
		w := r.workers[name]
		r.health.MarkHealthy(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.logger.Info("worker starting", zap.String("worker", name))

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("worker failed",
					zap.String("worker", name),
					zap.Error(err))
				r.health.MarkFailed(name)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			r.logger.Info("worker stopped gracefully", zap.String("worker", name))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("context cancelled, shutting down workers")
		return r.waitForShutdown(done)
	case <-done:
		r.logger.Warn("all workers have exited")
		mu.Lock()
		defer mu.Unlock()
		if failed > 0 {
			return ErrAllWorkersExited
		}
		return nil
	}
}

func (r *WorkerSupervisor) waitForShutdown(done <-chan struct{}) error {
	if r.shutdownTimeout <= 0 {
		<-done
		r.logger.Info("all workers shutdown gracefully")
		return nil
	}
	select {
	case <-done:
		r.logger.Info("all workers shutdown gracefully")
		return nil
	case <-time.After(r.shutdownTimeout):
		r.logger.Warn("shutdown timeout exceeded, some workers may still be running",
			zap.Duration("timeout", r.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded (%v)", r.shutdownTimeout)
	}
}
