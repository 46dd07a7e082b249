// Package manager defines the domain managers a service delegates to.
// Managers are registered by type name and built per service.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
)

var (
	ErrUnknownManager   = errors.New("unknown manager type")
	ErrDuplicateManager = errors.New("manager type already registered")
)

// Operation is a remotely callable manager method.
type Operation func(ctx context.Context, args json.RawMessage) (any, error)

type Manager interface {
	// InitHost runs once before the service registers itself.
	InitHost(ctx context.Context) error
	// PeriodicTasks runs the manager's maintenance work for one tick.
	PeriodicTasks(ctx context.Context) error
	// Operations is the table of methods reachable over the bus.
	Operations() map[string]Operation
}

// Deps is what a manager is built with.
type Deps struct {
	Host            string
	Binary          string
	Topic           string
	Store           driver.ServiceStore
	Notifier        alert.AlertNotifier
	Logger          *logging.Logger
	ServiceDownTime time.Duration
}

type Factory func(deps Deps) (Manager, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateManager, name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) New(name string, deps Deps) (Manager, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownManager, name)
	}
	return factory(deps)
}

type periodicTask struct {
	name string
	fn   func(ctx context.Context) error
}

// Base carries an operation table and an ordered list of periodic tasks.
// Embed it and register in the constructor.
type Base struct {
	operations map[string]Operation
	tasks      []periodicTask
}

func (b *Base) RegisterOperation(name string, op Operation) {
	if b.operations == nil {
		b.operations = make(map[string]Operation)
	}
	b.operations[name] = op
}

func (b *Base) RegisterPeriodicTask(name string, fn func(ctx context.Context) error) {
	b.tasks = append(b.tasks, periodicTask{name: name, fn: fn})
}

func (b *Base) InitHost(ctx context.Context) error {
	return nil
}

// PeriodicTasks runs every task in registration order. A failing task does
// not skip the ones after it; failures are joined.
func (b *Base) PeriodicTasks(ctx context.Context) error {
	var errs []error
	for _, task := range b.tasks {
		if err := task.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("periodic task %s: %w", task.name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Base) Operations() map[string]Operation {
	return maps.Clone(b.operations)
}

// Noop is a manager with no operations and no periodic work.
type Noop struct {
	Base
}

func NewNoop(Deps) (Manager, error) {
	return &Noop{}, nil
}
