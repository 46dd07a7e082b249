package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookdeck/hostnode/internal/config"
	"github.com/hookdeck/hostnode/internal/idgen"
	"github.com/hookdeck/hostnode/internal/infra"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/otel"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/services"
	"github.com/hookdeck/hostnode/internal/version"
	"go.uber.org/zap"
)

type App struct {
	config *config.Config
}

func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

// Run serves every configured service until SIGINT/SIGTERM or until the
// workers exit on their own.
func (a *App) Run(ctx context.Context) error {
	return run(ctx, a.config)
}

func run(mainContext context.Context, cfg *config.Config) (err error) {
	logger, err := logging.NewLogger(
		logging.WithLogLevel(cfg.LogLevel),
		logging.WithAuditLog(cfg.AuditLog),
	)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logFields := []zap.Field{
		zap.String("config_path", cfg.ConfigFilePath()),
		zap.String("version", version.Version()),
	}
	if cfg.DeploymentID != "" {
		logFields = append(logFields, zap.String("deployment_id", cfg.DeploymentID))
	}
	logger.Info("starting hostnode", logFields...)
	logger.Debug("configuration", cfg.LogConfigurationSummary()...)

	logger.Debug("configuring ID generators",
		zap.String("type", cfg.IDGen.Type),
		zap.String("registration_prefix", cfg.IDGen.RegistrationPrefix))
	if err := idgen.Configure(idgen.IDGenConfig{
		Type:               cfg.IDGen.Type,
		RegistrationPrefix: cfg.IDGen.RegistrationPrefix,
	}); err != nil {
		logger.Error("failed to configure ID generators", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(mainContext)
	defer cancel()

	if otelConfig := cfg.OpenTelemetry.ToOTELConfig(); otelConfig != nil {
		otelShutdown, setupErr := otel.SetupOTelSDK(ctx, otelConfig)
		if setupErr != nil {
			return setupErr
		}
		defer func() {
			err = errors.Join(err, otelShutdown(context.Background()))
		}()
	}

	if cfg.Store == "postgres" {
		if err := runMigration(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var redisClient redis.Client
	if needsRedis(cfg) {
		logger.Debug("initializing Redis client")
		redisClient, err = redis.New(ctx, cfg.Redis.ToConfig())
		if err != nil {
			logger.Error("Redis client initialization failed", zap.Error(err))
			return err
		}
		defer redisClient.Close()
	}

	if cfg.MQs.GetInfraType() != "inmemory" {
		logger.Debug("initializing message bus infrastructure", zap.String("mq_type", cfg.MQs.GetInfraType()))
		if err := infra.Init(ctx, cfg.MQs.ToInfraConfig(), redisClient); err != nil {
			logger.Error("infrastructure initialization failed", zap.Error(err))
			return err
		}
	}

	logger.Debug("building services")
	builder := services.NewServiceBuilder(ctx, cfg, logger, redisClient)
	supervisor, err := builder.BuildWorkers()
	if err != nil {
		logger.Error("failed to build workers", zap.Error(err))
		builder.Cleanup(context.Background())
		return err
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(termChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	var exitErr error
	select {
	case <-termChan:
		logger.Info("shutdown signal received")
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	builder.Cleanup(shutdownCtx)

	logger.Info("hostnode shutdown complete")
	return exitErr
}

// needsRedis reports whether any component needs a Redis connection: the
// redis store, or the provisioning lock of a real message broker.
func needsRedis(cfg *config.Config) bool {
	return cfg.Store == "redis" || cfg.MQs.GetInfraType() != "inmemory"
}
