// Package hostmonitor is a manager that watches the service registry. It
// answers liveness queries and raises an alert whenever another service's
// heartbeat goes stale or resumes.
package hostmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"go.uber.org/zap"
)

const (
	Type = "hostmonitor"

	OpPing         = "ping"
	OpListServices = "list_services"

	defaultDownTime = 60 * time.Second
)

var ErrMissingStore = errors.New("hostmonitor requires a service store")

type PingResult struct {
	Host   string    `json:"host"`
	Binary string    `json:"binary"`
	Topic  string    `json:"topic"`
	Time   time.Time `json:"time"`
}

type ListServicesArgs struct {
	Topic string `json:"topic,omitempty"`
	Host  string `json:"host,omitempty"`
}

type ServiceStatus struct {
	driver.Registration
	Up bool `json:"up"`
}

type Monitor struct {
	manager.Base

	deps manager.Deps
	now  func() time.Time

	mu     sync.Mutex
	states map[string]bool
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New is the manager.Factory for Type.
func New(deps manager.Deps) (manager.Manager, error) {
	return NewMonitor(deps)
}

func NewMonitor(deps manager.Deps, opts ...Option) (*Monitor, error) {
	if deps.Store == nil {
		return nil, ErrMissingStore
	}
	if deps.ServiceDownTime <= 0 {
		deps.ServiceDownTime = defaultDownTime
	}
	m := &Monitor{
		deps:   deps,
		now:    time.Now,
		states: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.RegisterOperation(OpPing, m.ping)
	m.RegisterOperation(OpListServices, m.listServices)
	m.RegisterPeriodicTask("check_liveness", m.checkLiveness)
	return m, nil
}

// InitHost records the current liveness of every service without alerting,
// so the first periodic run only reports actual transitions.
func (m *Monitor) InitHost(ctx context.Context) error {
	statuses, err := m.statuses(ctx, driver.ListRequest{})
	if err != nil {
		return fmt.Errorf("failed to load initial service states: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, status := range statuses {
		m.states[status.ID] = status.Up
	}
	return nil
}

// States returns the last observed liveness per registration id.
func (m *Monitor) States() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.states)
}

func (m *Monitor) ping(ctx context.Context, _ json.RawMessage) (any, error) {
	return PingResult{
		Host:   m.deps.Host,
		Binary: m.deps.Binary,
		Topic:  m.deps.Topic,
		Time:   m.now().UTC(),
	}, nil
}

func (m *Monitor) listServices(ctx context.Context, raw json.RawMessage) (any, error) {
	var args ListServicesArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid list_services args: %w", err)
		}
	}
	return m.statuses(ctx, driver.ListRequest{Topic: args.Topic, Host: args.Host})
}

func (m *Monitor) statuses(ctx context.Context, req driver.ListRequest) ([]ServiceStatus, error) {
	regs, err := m.deps.Store.List(ctx, req)
	if err != nil {
		return nil, err
	}
	now := m.now()
	statuses := make([]ServiceStatus, 0, len(regs))
	for _, reg := range regs {
		statuses = append(statuses, ServiceStatus{
			Registration: reg,
			Up:           driver.IsUp(reg, now, m.deps.ServiceDownTime),
		})
	}
	return statuses, nil
}

type transition struct {
	status ServiceStatus
}

func (m *Monitor) checkLiveness(ctx context.Context) error {
	statuses, err := m.statuses(ctx, driver.ListRequest{})
	if err != nil {
		return err
	}

	var transitions []transition
	m.mu.Lock()
	seen := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		seen[status.ID] = struct{}{}
		prev, known := m.states[status.ID]
		m.states[status.ID] = status.Up
		if known && prev != status.Up {
			transitions = append(transitions, transition{status: status})
		}
	}
	for id := range m.states {
		if _, ok := seen[id]; !ok {
			delete(m.states, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, tr := range transitions {
		if err := m.report(ctx, tr.status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) report(ctx context.Context, status ServiceStatus) error {
	if m.deps.Logger != nil {
		m.deps.Logger.Ctx(ctx).Info("service liveness changed",
			zap.String("registration_id", status.ID),
			zap.String("host", status.Host),
			zap.String("binary", status.Binary),
			zap.Bool("up", status.Up))
	}
	if m.deps.Notifier == nil {
		return nil
	}
	ref := alert.ServiceRef{
		RegistrationID: status.ID,
		Host:           status.Host,
		Binary:         status.Binary,
		Topic:          status.Topic,
	}
	return m.deps.Notifier.Notify(ctx, alert.NewLivenessAlert(status.Up, ref, status.UpdatedAt))
}
