package hostmonitor_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/hookdeck/hostnode/internal/manager/hostmonitor"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/servicestore/memservicestore"
	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) Topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var topics []string
	for _, a := range n.alerts {
		topics = append(topics, a.AlertTopic())
	}
	return topics
}

type fixture struct {
	clock    *clock
	store    driver.ServiceStore
	notifier *recordingNotifier
	monitor  *hostmonitor.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memservicestore.New(memservicestore.WithClock(c.Now))
	notifier := &recordingNotifier{}
	monitor, err := hostmonitor.NewMonitor(manager.Deps{
		Host:            "h1",
		Binary:          "hostnode-monitor",
		Topic:           "monitor",
		Store:           store,
		Notifier:        notifier,
		Logger:          testutil.CreateTestLogger(t),
		ServiceDownTime: time.Minute,
	}, hostmonitor.WithClock(c.Now))
	require.NoError(t, err)

	return &fixture{clock: c, store: store, notifier: notifier, monitor: monitor}
}

func TestNewMonitor_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := hostmonitor.New(manager.Deps{})
	assert.ErrorIs(t, err, hostmonitor.ErrMissingStore)
}

func TestMonitor_Ping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	op, ok := f.monitor.Operations()[hostmonitor.OpPing]
	require.True(t, ok)

	result, err := op(context.Background(), nil)
	require.NoError(t, err)
	ping := result.(hostmonitor.PingResult)
	assert.Equal(t, "h1", ping.Host)
	assert.Equal(t, "monitor", ping.Topic)
	assert.Equal(t, f.clock.Now(), ping.Time)
}

func TestMonitor_ListServices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Create(ctx, driver.Registration{Host: "h1", Binary: "hostnode-compute", Topic: "compute"})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	_, err = f.store.Create(ctx, driver.Registration{Host: "h2", Binary: "hostnode-compute", Topic: "compute"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, driver.Registration{Host: "h2", Binary: "hostnode-scheduler", Topic: "scheduler"})
	require.NoError(t, err)

	op := f.monitor.Operations()[hostmonitor.OpListServices]

	result, err := op(ctx, json.RawMessage(`{"topic":"compute"}`))
	require.NoError(t, err)
	statuses := result.([]hostmonitor.ServiceStatus)
	require.Len(t, statuses, 2)

	up := map[string]bool{}
	for _, s := range statuses {
		up[s.Host] = s.Up
	}
	assert.Equal(t, map[string]bool{"h1": false, "h2": true}, up)

	result, err = op(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, result.([]hostmonitor.ServiceStatus), 3)

	_, err = op(ctx, json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestMonitor_DetectsTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	reg, err := f.store.Create(ctx, driver.Registration{Host: "h2", Binary: "hostnode-compute", Topic: "compute"})
	require.NoError(t, err)
	require.NoError(t, f.monitor.InitHost(ctx))
	assert.Equal(t, map[string]bool{reg.ID: true}, f.monitor.States())

	// Still fresh: nothing to report.
	require.NoError(t, f.monitor.PeriodicTasks(ctx))
	assert.Empty(t, f.notifier.Topics())

	// Heartbeat goes stale.
	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.monitor.PeriodicTasks(ctx))
	assert.Equal(t, []string{alert.TopicServiceDown}, f.notifier.Topics())

	// Stays down: no repeat.
	require.NoError(t, f.monitor.PeriodicTasks(ctx))
	assert.Len(t, f.notifier.Topics(), 1)

	// Heartbeat resumes.
	count := reg.ReportCount + 1
	_, err = f.store.Update(ctx, reg.ID, driver.ServiceUpdate{ReportCount: &count})
	require.NoError(t, err)
	require.NoError(t, f.monitor.PeriodicTasks(ctx))
	assert.Equal(t, []string{alert.TopicServiceDown, alert.TopicServiceUp}, f.notifier.Topics())

	// Registration removed: forgotten without an alert.
	require.NoError(t, f.store.Delete(ctx, reg.ID))
	require.NoError(t, f.monitor.PeriodicTasks(ctx))
	assert.Empty(t, f.monitor.States())
	assert.Len(t, f.notifier.Topics(), 2)
}

func TestMonitor_NewServiceIsNotATransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.monitor.InitHost(ctx))

	_, err := f.store.Create(ctx, driver.Registration{Host: "h3", Binary: "hostnode-compute", Topic: "compute"})
	require.NoError(t, err)
	require.NoError(t, f.monitor.PeriodicTasks(ctx))

	assert.Empty(t, f.notifier.Topics())
	assert.Len(t, f.monitor.States(), 1)
}
