package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMisc(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("DuplicateHostBinary", func(t *testing.T) {
		ctx, store := setup(t, newHarness)
		input := newRegistration()

		first, err := store.Create(ctx, input)
		require.NoError(t, err)

		_, err = store.Create(ctx, input)
		assert.ErrorIs(t, err, driver.ErrDuplicateService)

		// Same host, different binary is fine.
		input.Binary = "hostnode-scheduler"
		second, err := store.Create(ctx, input)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("Validation", func(t *testing.T) {
		ctx, store := setup(t, newHarness)

		for _, reg := range []driver.Registration{
			{Binary: "b", Topic: "t"},
			{Host: "h", Topic: "t"},
			{Host: "h", Binary: "b"},
		} {
			_, err := store.Create(ctx, reg)
			assert.ErrorIs(t, err, driver.ErrInvalidService)
		}
	})

	t.Run("Liveness", func(t *testing.T) {
		ctx, store := setup(t, newHarness)

		created, err := store.Create(ctx, newRegistration())
		require.NoError(t, err)

		assert.True(t, driver.IsUp(*created, created.UpdatedAt.Add(time.Second), time.Minute))
		assert.False(t, driver.IsUp(*created, created.UpdatedAt.Add(2*time.Minute), time.Minute))
	})

	t.Run("DeploymentIsolation", func(t *testing.T) {
		ctx := context.Background()
		h, err := newHarness(ctx, t)
		require.NoError(t, err)
		t.Cleanup(h.Close)

		store1, store2, ok, err := h.MakeIsolatedDrivers(ctx)
		require.NoError(t, err)
		if !ok {
			t.Skip("driver does not support deployment isolation")
		}

		input := newRegistration()
		created, err := store1.Create(ctx, input)
		require.NoError(t, err)

		_, err = store2.Get(ctx, created.ID)
		assert.ErrorIs(t, err, driver.ErrServiceNotFound)
		_, err = store2.GetByArgs(ctx, input.Host, input.Binary)
		assert.ErrorIs(t, err, driver.ErrServiceNotFound)

		// The same (host, binary) may be registered in both deployments.
		_, err = store2.Create(ctx, input)
		require.NoError(t, err)
	})
}
