package mqs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownContext_OutlivesInitContext(t *testing.T) {
	t.Parallel()

	initCtx, cancelInit := context.WithCancel(context.Background())
	cancelInit()

	ctx, cancel := shutdownContext(initCtx)
	defer cancel()

	assert.NoError(t, ctx.Err())
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(ShutdownTimeout), deadline, time.Second)
}
