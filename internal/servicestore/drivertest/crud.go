package drivertest

import (
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistration() driver.Registration {
	return driver.Registration{
		Host:             "host-" + testutil.RandomString(8),
		Binary:           "hostnode-compute",
		Topic:            "compute",
		AvailabilityZone: "nova",
	}
}

func assertEqualTime(t *testing.T, expected, actual time.Time, field string) {
	t.Helper()
	assert.WithinDuration(t, expected, actual, time.Millisecond, "%s mismatch", field)
}

func testCRUD(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("InitIdempotency", func(t *testing.T) {
		ctx, store := setup(t, newHarness)
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Init(ctx), "Init call %d should not fail", i+1)
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		ctx, store := setup(t, newHarness)
		input := newRegistration()

		var created *driver.Registration

		t.Run("get by args before create", func(t *testing.T) {
			_, err := store.GetByArgs(ctx, input.Host, input.Binary)
			assert.ErrorIs(t, err, driver.ErrServiceNotFound)
		})

		t.Run("creates", func(t *testing.T) {
			var err error
			created, err = store.Create(ctx, input)
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, input.Host, created.Host)
			assert.Equal(t, input.Binary, created.Binary)
			assert.Equal(t, input.Topic, created.Topic)
			assert.Equal(t, 0, created.ReportCount)
			assert.Equal(t, "nova", created.AvailabilityZone)
			assert.False(t, created.CreatedAt.IsZero())
			assertEqualTime(t, created.CreatedAt, created.UpdatedAt, "UpdatedAt")
		})

		t.Run("gets by id", func(t *testing.T) {
			actual, err := store.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, actual.ID)
			assert.Equal(t, created.Host, actual.Host)
			assert.Equal(t, created.Topic, actual.Topic)
			assertEqualTime(t, created.CreatedAt, actual.CreatedAt, "CreatedAt")
		})

		t.Run("gets by args", func(t *testing.T) {
			actual, err := store.GetByArgs(ctx, input.Host, input.Binary)
			require.NoError(t, err)
			assert.Equal(t, created.ID, actual.ID)
		})

		t.Run("updates report count", func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				count := i
				updated, err := store.Update(ctx, created.ID, driver.ServiceUpdate{ReportCount: &count})
				require.NoError(t, err)
				assert.Equal(t, i, updated.ReportCount)
				assert.Equal(t, created.Topic, updated.Topic)
				assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
			}

			actual, err := store.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, actual.ReportCount)
		})

		t.Run("updates availability zone", func(t *testing.T) {
			zone := "az2"
			updated, err := store.Update(ctx, created.ID, driver.ServiceUpdate{AvailabilityZone: &zone})
			require.NoError(t, err)
			assert.Equal(t, "az2", updated.AvailabilityZone)
			assert.Equal(t, 3, updated.ReportCount)
		})

		t.Run("deletes", func(t *testing.T) {
			require.NoError(t, store.Delete(ctx, created.ID))

			_, err := store.Get(ctx, created.ID)
			assert.ErrorIs(t, err, driver.ErrServiceNotFound)
			_, err = store.GetByArgs(ctx, input.Host, input.Binary)
			assert.ErrorIs(t, err, driver.ErrServiceNotFound)
		})

		t.Run("recreates with a new id", func(t *testing.T) {
			recreated, err := store.Create(ctx, input)
			require.NoError(t, err)
			assert.NotEqual(t, created.ID, recreated.ID)
			assert.Equal(t, 0, recreated.ReportCount)
		})
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx, store := setup(t, newHarness)
		count := 1

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, driver.ErrServiceNotFound)

		_, err = store.Update(ctx, "missing", driver.ServiceUpdate{ReportCount: &count})
		assert.ErrorIs(t, err, driver.ErrServiceNotFound)

		err = store.Delete(ctx, "missing")
		assert.ErrorIs(t, err, driver.ErrServiceNotFound)
	})

	t.Run("ExplicitID", func(t *testing.T) {
		ctx, store := setup(t, newHarness)
		input := newRegistration()
		input.ID = "svc_" + testutil.RandomString(12)

		created, err := store.Create(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, input.ID, created.ID)

		actual, err := store.Get(ctx, input.ID)
		require.NoError(t, err)
		assert.Equal(t, input.Host, actual.Host)
	})
}
