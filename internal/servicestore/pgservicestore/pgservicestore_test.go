package pgservicestore_test

import (
	"context"
	"testing"

	"github.com/hookdeck/hostnode/internal/migrator"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/servicestore/drivertest"
	"github.com/hookdeck/hostnode/internal/servicestore/pgservicestore"
	"github.com/hookdeck/hostnode/internal/util/testinfra"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgServiceStoreHarness struct {
	pool *pgxpool.Pool
}

func (h *pgServiceStoreHarness) MakeDriver(_ context.Context) (driver.ServiceStore, error) {
	return pgservicestore.New(h.pool), nil
}

// Postgres deployments are isolated by database, not by key prefix.
func (h *pgServiceStoreHarness) MakeIsolatedDrivers(_ context.Context) (driver.ServiceStore, driver.ServiceStore, bool, error) {
	return nil, nil, false, nil
}

func (h *pgServiceStoreHarness) Close() {
	h.pool.Close()
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	t.Cleanup(testinfra.Start(t))
	url := testinfra.EnsurePostgres()

	m, err := migrator.New(migrator.MigrationOpts{PostgresURL: url})
	if err != nil {
		return nil, err
	}
	defer m.Close()
	if _, _, err := m.Up(ctx); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &pgServiceStoreHarness{pool: pool}, nil
}

func TestPGServiceStoreConformance_Integration(t *testing.T) {
	testutil.CheckIntegrationTest(t)
	drivertest.RunConformanceTests(t, newHarness)
}
