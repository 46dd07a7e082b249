package service

import (
	"context"

	"github.com/hookdeck/hostnode/internal/worker"
)

// Worker runs a Service under a worker.WorkerSupervisor. It starts the
// service, blocks until the supervisor shuts down, then stops the service
// and waits for in-flight work.
type Worker struct {
	svc *Service
}

var (
	_ worker.Worker = (*Worker)(nil)
	_ worker.Prober = (*Worker)(nil)
)

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

func (w *Worker) Name() string {
	return "service:" + w.svc.identity.Binary
}

func (w *Worker) Service() *Service {
	return w.svc
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.svc.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.svc.Stop()
	w.svc.Wait()
	return nil
}

// Probe reports the service degraded while its registry is unreachable.
func (w *Worker) Probe() string {
	if w.svc.Disconnected() {
		return worker.WorkerStatusDegraded
	}
	return worker.WorkerStatusHealthy
}
