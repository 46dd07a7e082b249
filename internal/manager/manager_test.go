package manager_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := manager.NewRegistry()
	require.NoError(t, registry.Register("noop", manager.NewNoop))
	assert.ErrorIs(t, registry.Register("noop", manager.NewNoop), manager.ErrDuplicateManager)

	assert.True(t, registry.Has("noop"))
	assert.False(t, registry.Has("compute"))
	assert.Equal(t, []string{"noop"}, registry.Names())

	m, err := registry.New("noop", manager.Deps{})
	require.NoError(t, err)
	assert.NoError(t, m.InitHost(context.Background()))
	assert.NoError(t, m.PeriodicTasks(context.Background()))
	assert.Empty(t, m.Operations())

	_, err = registry.New("compute", manager.Deps{})
	assert.ErrorIs(t, err, manager.ErrUnknownManager)
}

func TestBase_PeriodicTasksRunsAllInOrder(t *testing.T) {
	t.Parallel()

	var (
		base  manager.Base
		order []string
	)
	errFirst := errors.New("first")
	errThird := errors.New("third")
	base.RegisterPeriodicTask("first", func(context.Context) error {
		order = append(order, "first")
		return errFirst
	})
	base.RegisterPeriodicTask("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})
	base.RegisterPeriodicTask("third", func(context.Context) error {
		order = append(order, "third")
		return errThird
	})

	err := base.PeriodicTasks(context.Background())
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errThird)
	assert.Contains(t, err.Error(), "periodic task first")
}

func TestBase_OperationsIsACopy(t *testing.T) {
	t.Parallel()

	var base manager.Base
	base.RegisterOperation("ping", func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	})

	ops := base.Operations()
	require.Contains(t, ops, "ping")
	delete(ops, "ping")
	assert.Contains(t, base.Operations(), "ping")

	result, err := base.Operations()["ping"](context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", result)
}
