package testinfra

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var postgresOnce sync.Once

// EnsurePostgres returns a connection string for a Postgres database,
// starting a container the first time it is needed.
func EnsurePostgres() string {
	cfg := ReadConfig()
	if cfg.PostgresURL == "" {
		postgresOnce.Do(func() {
			startPostgresTestContainer(cfg)
		})
	}
	return cfg.PostgresURL
}

func startPostgresTestContainer(cfg *Config) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hostnode"),
		postgres.WithUsername("hostnode"),
		postgres.WithPassword("hostnode"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	log.Printf("Postgres running at %s", connStr)
	cfg.PostgresURL = connStr
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
