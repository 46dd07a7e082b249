package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAudit(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	FromZap(zap.New(core)).Audit("Starting compute node (version dev)")
	assert.Zero(t, logs.Len(), "audit disabled")

	FromZap(zap.New(core), WithAuditLog(true)).Audit("Starting compute node (version dev)", zap.String("host", "h1"))
	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, map[string]any{"host": "h1", "audit": true}, entries[0].ContextMap())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG").Level())
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn").Level())
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus").Level())
}
