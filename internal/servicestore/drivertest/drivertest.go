// Package drivertest provides a conformance test suite for servicestore drivers.
package drivertest

import (
	"context"
	"testing"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
)

// Harness provides the test infrastructure for a servicestore driver implementation.
type Harness interface {
	// MakeDriver creates a driver with default settings.
	MakeDriver(ctx context.Context) (driver.ServiceStore, error)
	// MakeIsolatedDrivers creates two drivers that share the same backend
	// but are isolated from each other (e.g., different deployment IDs).
	// Drivers without isolation support return ok=false.
	MakeIsolatedDrivers(ctx context.Context) (store1, store2 driver.ServiceStore, ok bool, err error)
	Close()
}

// HarnessMaker creates a new Harness for each test.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests executes the conformance suite for a servicestore driver:
//   - CRUD: create/read/update/delete and their not-found paths
//   - List: filtering and ordering
//   - Misc: duplicate detection, validation, deployment isolation
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("CRUD", func(t *testing.T) {
		testCRUD(t, newHarness)
	})
	t.Run("List", func(t *testing.T) {
		testList(t, newHarness)
	})
	t.Run("Misc", func(t *testing.T) {
		testMisc(t, newHarness)
	})
}

func setup(t *testing.T, newHarness HarnessMaker) (context.Context, driver.ServiceStore) {
	t.Helper()
	ctx := context.Background()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatalf("failed to create harness: %v", err)
	}
	t.Cleanup(h.Close)

	store, err := h.MakeDriver(ctx)
	if err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init driver: %v", err)
	}
	return ctx, store
}
