// Package migrator applies the embedded Postgres schema for the service
// registry with golang-migrate.
package migrator

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var pgMigrations embed.FS

type Migrator struct {
	migrate *migrate.Migrate
}

type MigrationOpts struct {
	PostgresURL string
}

func New(opts MigrationOpts) (*Migrator, error) {
	if opts.PostgresURL == "" {
		return nil, errors.New("invalid migration opts: postgres url is required")
	}

	src, err := iofs.New(pgMigrations, "migrations/postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, opts.PostgresURL)
	if err != nil {
		// golang-migrate echoes the database URL, credentials included.
		return nil, sanitizeConnectionError(err, opts.PostgresURL)
	}

	return &Migrator{migrate: m}, nil
}

func (m *Migrator) Version(ctx context.Context) (int, error) {
	version, _, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("migrate.Version: %w", err)
	}
	return int(version), nil
}

// Up applies every pending migration. It returns the resulting version and
// the number of migrations applied.
func (m *Migrator) Up(ctx context.Context) (int, int, error) {
	initVersion, err := m.Version(ctx)
	if err != nil {
		return 0, 0, err
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return initVersion, 0, nil
		}
		return initVersion, 0, fmt.Errorf("migrate.Up: %w", err)
	}

	version, err := m.Version(ctx)
	if err != nil {
		return initVersion, 0, fmt.Errorf("reading version after migration: %w", err)
	}
	return version, version - initVersion, nil
}

// Down rolls back every applied migration.
func (m *Migrator) Down(ctx context.Context) (int, error) {
	initVersion, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate.Down: %w", err)
	}
	return initVersion, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}
