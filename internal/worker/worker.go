package worker

import "context"

// Worker is a long-running part of the process, run in its own goroutine
// by a WorkerSupervisor.
//
// Run blocks until ctx is cancelled or a fatal error occurs. It returns nil
// or context.Canceled on graceful shutdown.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Prober is implemented by workers that can be running yet impaired, such
// as a service that lost its registry connection. Probe returns
// WorkerStatusHealthy or WorkerStatusDegraded.
type Prober interface {
	Probe() string
}
