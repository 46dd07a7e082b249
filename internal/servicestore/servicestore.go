// Package servicestore provides the ServiceStore facade over the registry drivers.
package servicestore

import (
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/servicestore/memservicestore"
	"github.com/hookdeck/hostnode/internal/servicestore/pgservicestore"
	"github.com/hookdeck/hostnode/internal/servicestore/redisservicestore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Type aliases re-exported from driver.
type ServiceStore = driver.ServiceStore
type Registration = driver.Registration
type ServiceUpdate = driver.ServiceUpdate
type ListRequest = driver.ListRequest

// Error sentinels re-exported from driver.
var (
	ErrServiceNotFound  = driver.ErrServiceNotFound
	ErrDuplicateService = driver.ErrDuplicateService
	ErrInvalidService   = driver.ErrInvalidService
)

var IsUp = driver.IsUp

// Config holds the configuration for creating a ServiceStore.
type Config struct {
	RedisClient  redis.Cmdable
	DeploymentID string
}

// New creates a new Redis-backed ServiceStore.
func New(cfg Config) ServiceStore {
	var opts []redisservicestore.Option
	if cfg.DeploymentID != "" {
		opts = append(opts, redisservicestore.WithDeploymentID(cfg.DeploymentID))
	}
	return redisservicestore.New(cfg.RedisClient, opts...)
}

// NewPGServiceStore creates a Postgres-backed ServiceStore. The schema is
// owned by the migrator package.
func NewPGServiceStore(pool *pgxpool.Pool) ServiceStore {
	return pgservicestore.New(pool)
}

// NewMemServiceStore creates an in-memory ServiceStore.
func NewMemServiceStore() ServiceStore {
	return memservicestore.New()
}
