package redisservicestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/servicestore/drivertest"
	"github.com/hookdeck/hostnode/internal/servicestore/redisservicestore"
	"github.com/hookdeck/hostnode/internal/util/testinfra"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClientFactory is a function that creates a Redis client for testing.
type redisClientFactory func(t *testing.T) redis.Cmdable

func miniredisFactory(t *testing.T) redis.Cmdable {
	return testutil.CreateTestRedisClient(t)
}

func redisFactory(t *testing.T) redis.Cmdable {
	t.Cleanup(testinfra.Start(t))
	return testinfra.NewRedisClient(t)
}

// redisServiceStoreHarness implements drivertest.Harness for Redis-backed stores.
type redisServiceStoreHarness struct {
	factory redisClientFactory
	t       *testing.T
}

func (h *redisServiceStoreHarness) MakeDriver(_ context.Context) (driver.ServiceStore, error) {
	return redisservicestore.New(h.factory(h.t)), nil
}

func (h *redisServiceStoreHarness) MakeIsolatedDrivers(_ context.Context) (driver.ServiceStore, driver.ServiceStore, bool, error) {
	client := h.factory(h.t)
	store1 := redisservicestore.New(client, redisservicestore.WithDeploymentID("dp_a"))
	store2 := redisservicestore.New(client, redisservicestore.WithDeploymentID("dp_b"))
	return store1, store2, true, nil
}

func (h *redisServiceStoreHarness) Close() {}

func harnessMaker(factory redisClientFactory) drivertest.HarnessMaker {
	return func(_ context.Context, t *testing.T) (drivertest.Harness, error) {
		return &redisServiceStoreHarness{factory: factory, t: t}, nil
	}
}

func TestMiniredisConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, harnessMaker(miniredisFactory))
}

func TestRedisConformance_Integration(t *testing.T) {
	testutil.CheckIntegrationTest(t)
	drivertest.RunConformanceTests(t, harnessMaker(redisFactory))
}

func TestCreateTakesOverStaleArgsKey(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.CreateTestRedis(t)
	store := redisservicestore.New(client)

	first, err := store.Create(ctx, driver.Registration{Host: "h1", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)

	// Simulate the hash vanishing while the (host, binary) pointer survives.
	mr.Del("{services}:service:" + first.ID)

	second, err := store.Create(ctx, driver.Registration{Host: "h1", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	byArgs, err := store.GetByArgs(ctx, "h1", "worker-x")
	require.NoError(t, err)
	assert.Equal(t, second.ID, byArgs.ID)
}

func TestListSkipsVanishedHashes(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.CreateTestRedis(t)
	store := redisservicestore.New(client)

	reg, err := store.Create(ctx, driver.Registration{Host: "h1", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)
	_, err = store.Create(ctx, driver.Registration{Host: "h2", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)

	mr.Del("{services}:service:" + reg.ID)

	regs, err := store.List(ctx, driver.ListRequest{})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "h2", regs[0].Host)
}

func TestUnreachableRedis(t *testing.T) {
	ctx := context.Background()
	client, mr := testutil.CreateTestRedis(t)
	store := redisservicestore.New(client)

	reg, err := store.Create(ctx, driver.Registration{Host: "h1", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)

	mr.SetError("ERR simulated outage")
	_, err = store.Get(ctx, reg.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, driver.ErrServiceNotFound)

	mr.SetError("")
	_, err = store.Get(ctx, reg.ID)
	require.NoError(t, err)
}

func TestUpdateTimestamps(t *testing.T) {
	ctx := context.Background()
	client := testutil.CreateTestRedisClient(t)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := redisservicestore.New(client, redisservicestore.WithClock(func() time.Time { return now }))

	reg, err := store.Create(ctx, driver.Registration{Host: "h1", Binary: "worker-x", Topic: "compute"})
	require.NoError(t, err)
	assert.Equal(t, now, reg.CreatedAt)

	now = now.Add(10 * time.Second)
	count := 1
	updated, err := store.Update(ctx, reg.ID, driver.ServiceUpdate{ReportCount: &count})
	require.NoError(t, err)
	assert.Equal(t, reg.CreatedAt, updated.CreatedAt)
	assert.Equal(t, now, updated.UpdatedAt)
}
