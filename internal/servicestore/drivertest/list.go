package drivertest

import (
	"testing"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testList(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	ctx, store := setup(t, newHarness)

	prefix := testutil.RandomString(6)
	inputs := []driver.Registration{
		{Host: prefix + "-b", Binary: "hostnode-compute", Topic: "compute"},
		{Host: prefix + "-a", Binary: "hostnode-scheduler", Topic: "scheduler"},
		{Host: prefix + "-a", Binary: "hostnode-compute", Topic: "compute"},
	}
	for _, in := range inputs {
		_, err := store.Create(ctx, in)
		require.NoError(t, err)
	}

	hosts := func(regs []driver.Registration) []string {
		out := []string{}
		for _, r := range regs {
			if len(r.Host) > len(prefix) && r.Host[:len(prefix)] == prefix {
				out = append(out, r.Host+"/"+r.Binary)
			}
		}
		return out
	}

	t.Run("all ordered by host and binary", func(t *testing.T) {
		regs, err := store.List(ctx, driver.ListRequest{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			prefix + "-a/hostnode-compute",
			prefix + "-a/hostnode-scheduler",
			prefix + "-b/hostnode-compute",
		}, hosts(regs))
	})

	t.Run("by topic", func(t *testing.T) {
		regs, err := store.List(ctx, driver.ListRequest{Topic: "scheduler"})
		require.NoError(t, err)
		assert.Equal(t, []string{prefix + "-a/hostnode-scheduler"}, hosts(regs))
		for _, r := range regs {
			assert.Equal(t, "scheduler", r.Topic)
		}
	})

	t.Run("by host", func(t *testing.T) {
		regs, err := store.List(ctx, driver.ListRequest{Host: prefix + "-b"})
		require.NoError(t, err)
		require.Len(t, regs, 1)
		assert.Equal(t, "hostnode-compute", regs[0].Binary)
	})

	t.Run("by topic and host", func(t *testing.T) {
		regs, err := store.List(ctx, driver.ListRequest{Topic: "compute", Host: prefix + "-a"})
		require.NoError(t, err)
		assert.Equal(t, []string{prefix + "-a/hostnode-compute"}, hosts(regs))
	})

	t.Run("no match", func(t *testing.T) {
		regs, err := store.List(ctx, driver.ListRequest{Topic: "nothing-" + prefix})
		require.NoError(t, err)
		assert.NotNil(t, regs)
		assert.Empty(t, regs)
	})

	t.Run("excludes deleted", func(t *testing.T) {
		reg, err := store.GetByArgs(ctx, prefix+"-b", "hostnode-compute")
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, reg.ID))

		regs, err := store.List(ctx, driver.ListRequest{Host: prefix + "-b"})
		require.NoError(t, err)
		assert.Empty(t, regs)
	})
}
