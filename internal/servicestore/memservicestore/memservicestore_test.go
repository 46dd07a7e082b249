package memservicestore

import (
	"context"
	"testing"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/servicestore/drivertest"
)

type memServiceStoreHarness struct{}

func (h *memServiceStoreHarness) MakeDriver(_ context.Context) (driver.ServiceStore, error) {
	return New(), nil
}

func (h *memServiceStoreHarness) MakeIsolatedDrivers(_ context.Context) (driver.ServiceStore, driver.ServiceStore, bool, error) {
	return New(), New(), true, nil
}

func (h *memServiceStoreHarness) Close() {}

func newHarness(_ context.Context, _ *testing.T) (drivertest.Harness, error) {
	return &memServiceStoreHarness{}, nil
}

func TestMemServiceStoreConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, newHarness)
}
