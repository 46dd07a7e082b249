// Package memservicestore provides an in-memory implementation of driver.ServiceStore.
package memservicestore

import (
	"context"
	"sync"
	"time"

	"github.com/hookdeck/hostnode/internal/idgen"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
)

type store struct {
	mu sync.RWMutex

	services map[string]driver.Registration // id -> registration
	byArgs   map[string]string              // "host\x00binary" -> id

	now func() time.Time
}

var _ driver.ServiceStore = (*store)(nil)

// Option configures a memservicestore.
type Option func(*store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *store) {
		s.now = now
	}
}

// New creates a new in-memory ServiceStore.
func New(opts ...Option) driver.ServiceStore {
	s := &store{
		services: make(map[string]driver.Registration),
		byArgs:   make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func argsKey(host, binary string) string {
	return host + "\x00" + binary
}

func (s *store) Init(_ context.Context) error {
	return nil
}

func (s *store) Get(_ context.Context, id string) (*driver.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.services[id]
	if !ok {
		return nil, driver.ErrServiceNotFound
	}
	return &reg, nil
}

func (s *store) GetByArgs(_ context.Context, host, binary string) (*driver.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byArgs[argsKey(host, binary)]
	if !ok {
		return nil, driver.ErrServiceNotFound
	}
	reg := s.services[id]
	return &reg, nil
}

func (s *store) Create(_ context.Context, reg driver.Registration) (*driver.Registration, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := argsKey(reg.Host, reg.Binary)
	if _, exists := s.byArgs[key]; exists {
		return nil, driver.ErrDuplicateService
	}
	if reg.ID == "" {
		reg.ID = idgen.Registration()
	}
	if _, exists := s.services[reg.ID]; exists {
		return nil, driver.ErrDuplicateService
	}

	now := s.now().UTC()
	reg.CreatedAt = now
	reg.UpdatedAt = now
	s.services[reg.ID] = reg
	s.byArgs[key] = reg.ID
	return &reg, nil
}

func (s *store) Update(_ context.Context, id string, update driver.ServiceUpdate) (*driver.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.services[id]
	if !ok {
		return nil, driver.ErrServiceNotFound
	}
	if update.ReportCount != nil {
		reg.ReportCount = *update.ReportCount
	}
	if update.AvailabilityZone != nil {
		reg.AvailabilityZone = *update.AvailabilityZone
	}
	reg.UpdatedAt = s.now().UTC()
	s.services[id] = reg
	return &reg, nil
}

func (s *store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.services[id]
	if !ok {
		return driver.ErrServiceNotFound
	}
	delete(s.services, id)
	delete(s.byArgs, argsKey(reg.Host, reg.Binary))
	return nil
}

func (s *store) List(_ context.Context, req driver.ListRequest) ([]driver.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]driver.Registration, 0, len(s.services))
	for _, reg := range s.services {
		if req.Matches(reg) {
			out = append(out, reg)
		}
	}
	driver.SortRegistrations(out)
	return out, nil
}
