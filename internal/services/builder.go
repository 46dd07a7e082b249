package services

import (
	"context"
	"fmt"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/config"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/hookdeck/hostnode/internal/manager/hostmonitor"
	"github.com/hookdeck/hostnode/internal/mqs"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/service"
	"github.com/hookdeck/hostnode/internal/servicestore"
	"github.com/hookdeck/hostnode/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ServiceBuilder turns the configuration into supervised workers: one per
// hosted service plus the health HTTP server.
type ServiceBuilder struct {
	ctx         context.Context
	cfg         *config.Config
	logger      *logging.Logger
	redisClient redis.Client
	supervisor  *worker.WorkerSupervisor

	runtimes     []*service.Service
	cleanupFuncs []func(context.Context, *logging.LoggerWithCtx)
}

// NewServiceBuilder creates a builder. redisClient may be nil unless the
// configured store is redis.
func NewServiceBuilder(ctx context.Context, cfg *config.Config, logger *logging.Logger, redisClient redis.Client) *ServiceBuilder {
	return &ServiceBuilder{
		ctx:         ctx,
		cfg:         cfg,
		logger:      logger,
		redisClient: redisClient,
		supervisor:  worker.NewWorkerSupervisor(logger),
	}
}

// RegisterDefaultManagers adds the manager types shipped with hostnode to
// registry. A name that is already taken is an error.
func RegisterDefaultManagers(registry *manager.Registry) error {
	defaults := []struct {
		name    string
		factory manager.Factory
	}{
		{hostmonitor.Type, hostmonitor.New},
		{"noop", manager.NewNoop},
	}
	for _, d := range defaults {
		if err := registry.Register(d.name, d.factory); err != nil {
			return fmt.Errorf("failed to register manager %s: %w", d.name, err)
		}
	}
	return nil
}

func DefaultManagers() (*manager.Registry, error) {
	registry := manager.NewRegistry()
	if err := RegisterDefaultManagers(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// BuildWorkers creates the shared store, bus and notifier, then one service
// runtime per configured service.
func (b *ServiceBuilder) BuildWorkers() (*worker.WorkerSupervisor, error) {
	store, err := b.buildStore()
	if err != nil {
		b.logger.Error("service store setup failed", zap.Error(err))
		return nil, err
	}

	bus, err := b.buildBus()
	if err != nil {
		b.logger.Error("message bus setup failed", zap.Error(err))
		return nil, err
	}

	notifier := alert.NewNotifier(b.logger, b.cfg.Alert.CallbackURL, b.cfg.Alert.BearerToken)
	registry, err := DefaultManagers()
	if err != nil {
		return nil, err
	}

	defaults := b.cfg.ToServiceDefaults()
	deps := service.Deps{
		Store:           store,
		Bus:             bus,
		Managers:        registry,
		Notifier:        notifier,
		Logger:          b.logger,
		ServiceDownTime: b.cfg.ServiceDownTime(),
	}

	for _, opts := range b.cfg.ServiceOptions() {
		svc, err := service.Create(opts, defaults, deps)
		if err != nil {
			b.logger.Error("service configuration failed", zap.Error(err))
			return nil, err
		}
		b.logger.Debug("service built",
			zap.String("binary", svc.Identity().Binary),
			zap.String("topic", svc.Identity().Topic),
			zap.String("manager", svc.ManagerType()))
		b.runtimes = append(b.runtimes, svc)
		b.supervisor.Register(service.NewWorker(svc))
	}

	if b.cfg.HealthPort > 0 {
		router := NewBaseRouter(b.supervisor, b.runtimes, b.cfg.GinMode, b.otelServiceName())
		b.supervisor.Register(NewHTTPServerWorker(fmt.Sprintf(":%d", b.cfg.HealthPort), router, b.logger))
	}

	return b.supervisor, nil
}

// Services returns the runtimes built so far.
func (b *ServiceBuilder) Services() []*service.Service {
	return b.runtimes
}

func (b *ServiceBuilder) buildStore() (servicestore.ServiceStore, error) {
	store, closeStore, err := NewServiceStore(b.ctx, b.cfg, b.redisClient)
	if err != nil {
		return nil, err
	}
	b.addCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
		closeStore()
	})
	return store, nil
}

// NewServiceStore opens and initializes the configured registry store. The
// returned func releases its connections.
func NewServiceStore(ctx context.Context, cfg *config.Config, redisClient redis.Cmdable) (servicestore.ServiceStore, func(), error) {
	var (
		store     servicestore.ServiceStore
		closeFunc = func() {}
	)
	switch cfg.Store {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closeFunc = pool.Close
		store = servicestore.NewPGServiceStore(pool)
	case "memory":
		store = servicestore.NewMemServiceStore()
	default:
		if redisClient == nil {
			return nil, nil, config.ErrMissingRedis
		}
		store = servicestore.New(servicestore.Config{
			RedisClient:  redisClient,
			DeploymentID: cfg.DeploymentID,
		})
	}

	if err := store.Init(ctx); err != nil {
		closeFunc()
		return nil, nil, fmt.Errorf("failed to initialize %s service store: %w", cfg.Store, err)
	}
	return store, closeFunc, nil
}

func (b *ServiceBuilder) buildBus() (mqs.Bus, error) {
	bus := b.cfg.MQs.ToBus()
	b.logger.Debug("initializing message bus", zap.String("mq_type", b.cfg.MQs.GetInfraType()))
	cleanup, err := bus.Init(b.ctx)
	if err != nil {
		return nil, err
	}
	b.addCleanup(func(ctx context.Context, logger *logging.LoggerWithCtx) {
		cleanup()
	})
	return bus, nil
}

func (b *ServiceBuilder) otelServiceName() string {
	if b.cfg.OpenTelemetry == nil {
		return ""
	}
	return b.cfg.OpenTelemetry.ServiceName
}

func (b *ServiceBuilder) addCleanup(fn func(context.Context, *logging.LoggerWithCtx)) {
	b.cleanupFuncs = append(b.cleanupFuncs, fn)
}

// Cleanup releases the shared resources in reverse creation order.
func (b *ServiceBuilder) Cleanup(ctx context.Context) {
	logger := b.logger.Ctx(ctx)
	for i := len(b.cleanupFuncs) - 1; i >= 0; i-- {
		b.cleanupFuncs[i](ctx, &logger)
	}
	b.cleanupFuncs = nil
}
