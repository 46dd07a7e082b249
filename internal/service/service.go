// Package service is the runtime hosting one worker service: it registers
// the service in the registry, keeps its heartbeat, runs the manager's
// periodic tasks and dispatches remote commands to the manager.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/hookdeck/hostnode/internal/mqs"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var ErrUnknownOperation = errors.New("unknown operation")

// ConfigurationError is returned by Create when part of the service
// identity cannot be resolved.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("service configuration: cannot resolve %s: %s", e.Field, e.Reason)
}

type Identity struct {
	Host   string
	Binary string
	Topic  string
}

func (id Identity) String() string {
	return id.Topic + "@" + id.Host
}

// Options are the per-service settings. Unset fields fall back to Defaults.
// A nil interval means "use the default"; a non-positive one disables the
// activity.
type Options struct {
	Host             string
	Binary           string
	Topic            string
	Manager          string
	ReportInterval   *time.Duration
	PeriodicInterval *time.Duration
}

// Defaults are the process-wide fallbacks, built once from configuration.
type Defaults struct {
	Host         string
	Binary       string
	BinaryPrefix string
	// Managers maps a topic to its manager type.
	Managers         map[string]string
	ReportInterval   time.Duration
	PeriodicInterval time.Duration
	AvailabilityZone string
	Version          string
	// RegistryTimeout bounds the registry calls of one heartbeat. Zero
	// leaves them unbounded.
	RegistryTimeout time.Duration
}

type Deps struct {
	Store    driver.ServiceStore
	Bus      mqs.Bus
	Managers *manager.Registry
	Notifier alert.AlertNotifier
	Logger   *logging.Logger
	// Meter defaults to the global meter provider.
	Meter           metric.Meter
	ServiceDownTime time.Duration
}

// Activity is anything the service started and must stop: timers and
// consumer bindings.
type Activity interface {
	Name() string
	Stop() error
	Wait() error
}

type Service struct {
	identity         Identity
	managerType      string
	manager          manager.Manager
	managerOps       map[string]manager.Operation
	operations       map[string]manager.Operation
	reportInterval   time.Duration
	periodicInterval time.Duration
	availabilityZone string
	version          string
	registryTimeout  time.Duration

	store    driver.ServiceStore
	bus      mqs.Bus
	notifier alert.AlertNotifier
	logger   *logging.Logger
	metrics  *serviceMetrics

	mu           sync.Mutex
	serviceID    string
	disconnected bool
	activities   []Activity
	stopped      []Activity

	// reportMu serializes heartbeats with each other and with Kill.
	reportMu sync.Mutex
	killed   bool
}

// Create resolves the service identity and builds its manager. It does not
// touch the registry.
func Create(opts Options, defaults Defaults, deps Deps) (*Service, error) {
	host := firstNonEmpty(opts.Host, defaults.Host)
	if host == "" {
		return nil, &ConfigurationError{Field: "host", Reason: "no host configured"}
	}

	binary := opts.Binary
	if binary == "" && opts.Topic != "" {
		binary = defaults.BinaryPrefix + opts.Topic
	}
	if binary == "" {
		binary = defaults.Binary
	}
	if binary == "" {
		return nil, &ConfigurationError{Field: "binary", Reason: "no binary configured"}
	}

	topic := opts.Topic
	if topic == "" {
		topic = topicFromBinary(binary, defaults.BinaryPrefix)
	}
	if topic == "" {
		return nil, &ConfigurationError{Field: "topic", Reason: fmt.Sprintf("binary %q yields an empty topic", binary)}
	}

	managerType := opts.Manager
	if managerType == "" {
		managerType = defaults.Managers[topic]
	}
	if managerType == "" {
		return nil, &ConfigurationError{Field: "manager", Reason: fmt.Sprintf("no manager configured for topic %q", topic)}
	}
	if deps.Managers == nil || !deps.Managers.Has(managerType) {
		return nil, &ConfigurationError{Field: "manager", Reason: fmt.Sprintf("unknown manager type %q", managerType)}
	}
	if deps.Store == nil {
		return nil, &ConfigurationError{Field: "store", Reason: "no service store"}
	}

	reportInterval := defaults.ReportInterval
	if opts.ReportInterval != nil {
		reportInterval = *opts.ReportInterval
	}
	periodicInterval := defaults.PeriodicInterval
	if opts.PeriodicInterval != nil {
		periodicInterval = *opts.PeriodicInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.FromZap(zap.NewNop())
	}

	mgr, err := deps.Managers.New(managerType, manager.Deps{
		Host:            host,
		Binary:          binary,
		Topic:           topic,
		Store:           deps.Store,
		Notifier:        deps.Notifier,
		Logger:          logger,
		ServiceDownTime: deps.ServiceDownTime,
	})
	if err != nil {
		return nil, &ConfigurationError{Field: "manager", Reason: err.Error()}
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/hookdeck/hostnode/internal/service")
	}
	metrics, err := newServiceMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create service metrics: %w", err)
	}

	s := &Service{
		identity:         Identity{Host: host, Binary: binary, Topic: topic},
		managerType:      managerType,
		manager:          mgr,
		managerOps:       mgr.Operations(),
		reportInterval:   reportInterval,
		periodicInterval: periodicInterval,
		availabilityZone: defaults.AvailabilityZone,
		version:          defaults.Version,
		registryTimeout:  defaults.RegistryTimeout,
		store:            deps.Store,
		bus:              deps.Bus,
		notifier:         deps.Notifier,
		logger:           logger,
		metrics:          metrics,
	}
	s.operations = s.runtimeOperations()
	return s, nil
}

// topicFromBinary returns what follows the last occurrence of prefix in
// binary, or binary itself when prefix does not occur.
func topicFromBinary(binary, prefix string) string {
	if prefix == "" {
		return binary
	}
	idx := strings.LastIndex(binary, prefix)
	if idx < 0 {
		return binary
	}
	return binary[idx+len(prefix):]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Service) Identity() Identity {
	return s.identity
}

func (s *Service) ManagerType() string {
	return s.managerType
}

func (s *Service) Manager() manager.Manager {
	return s.manager
}

func (s *Service) ReportInterval() time.Duration {
	return s.reportInterval
}

func (s *Service) PeriodicInterval() time.Duration {
	return s.periodicInterval
}

// ServiceID is the id of the current registration, empty before Start.
func (s *Service) ServiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceID
}

// Disconnected reports whether the last registry access failed.
func (s *Service) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// ActiveActivities is the number of activities started and not yet stopped.
func (s *Service) ActiveActivities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activities)
}

type Info struct {
	ID               string `json:"id"`
	Host             string `json:"host"`
	Binary           string `json:"binary"`
	Topic            string `json:"topic"`
	Manager          string `json:"manager"`
	Disconnected     bool   `json:"disconnected"`
	ActiveActivities int    `json:"active_activities"`
}

func (s *Service) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.serviceID,
		Host:             s.identity.Host,
		Binary:           s.identity.Binary,
		Topic:            s.identity.Topic,
		Manager:          s.managerType,
		Disconnected:     s.disconnected,
		ActiveActivities: len(s.activities),
	}
}

func (s *Service) fields(extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("host", s.identity.Host),
		zap.String("binary", s.identity.Binary),
		zap.String("topic", s.identity.Topic),
	}
	return append(fields, extra...)
}

func (s *Service) serviceRef() alert.ServiceRef {
	return alert.ServiceRef{
		RegistrationID: s.ServiceID(),
		Host:           s.identity.Host,
		Binary:         s.identity.Binary,
		Topic:          s.identity.Topic,
	}
}
