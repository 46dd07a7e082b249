package worker

import (
	"maps"
	"sync"
	"time"
)

const (
	WorkerStatusHealthy  = "healthy"
	WorkerStatusDegraded = "degraded"
	WorkerStatusFailed   = "failed"
)

// WorkerHealth is the reported state of one worker. Error details are not
// exposed.
type WorkerHealth struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

type HealthStatus struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Workers   map[string]WorkerHealth `json:"workers"`
}

// HealthTracker records worker states. It is safe for concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	workers map[string]WorkerHealth
	probes  map[string]Prober
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		workers: make(map[string]WorkerHealth),
		probes:  make(map[string]Prober),
	}
}

func (h *HealthTracker) MarkHealthy(name string) {
	h.mark(name, WorkerStatusHealthy)
}

// MarkFailed marks a worker as failed. A failed worker is never probed again.
func (h *HealthTracker) MarkFailed(name string) {
	h.mark(name, WorkerStatusFailed)
}

func (h *HealthTracker) mark(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = WorkerHealth{Status: status, LastCheck: time.Now()}
}

// AddProbe consults p whenever the named worker is reported healthy.
func (h *HealthTracker) AddProbe(name string, p Prober) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// IsHealthy reports whether no worker has failed. Degraded workers are still
// serving and count as healthy here.
func (h *HealthTracker) IsHealthy() bool {
	return h.GetStatus().Status != WorkerStatusFailed
}

func (h *HealthTracker) GetStatus() HealthStatus {
	h.mu.RLock()
	workers := maps.Clone(h.workers)
	probes := maps.Clone(h.probes)
	h.mu.RUnlock()

	now := time.Now()
	overall := WorkerStatusHealthy
	for name, w := range workers {
		if w.Status == WorkerStatusHealthy {
			if p, ok := probes[name]; ok {
				w = WorkerHealth{Status: p.Probe(), LastCheck: now}
				workers[name] = w
			}
		}
		switch {
		case w.Status == WorkerStatusFailed:
			overall = WorkerStatusFailed
		case w.Status == WorkerStatusDegraded && overall == WorkerStatusHealthy:
			overall = WorkerStatusDegraded
		}
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: now,
		Workers:   workers,
	}
}
