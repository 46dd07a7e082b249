package alert_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testService = alert.ServiceRef{
	RegistrationID: "svc_123",
	Host:           "h1",
	Binary:         "hostnode-compute",
	Topic:          "compute",
}

func TestAlertNotifier_Notify(t *testing.T) {
	t.Parallel()

	t.Run("successful notification", func(t *testing.T) {
		t.Parallel()
		var called atomic.Bool

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called.Store(true)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]any
			err := json.NewDecoder(r.Body).Decode(&body)
			require.NoError(t, err)

			assert.Equal(t, alert.TopicConnectionLost, body["topic"])
			data := body["data"].(map[string]any)
			assert.Equal(t, "redis down", data["error"])
			service := data["service"].(map[string]any)
			assert.Equal(t, "h1", service["host"])
			assert.Equal(t, "compute", service["topic"])

			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		notifier := alert.NewHTTPAlertNotifier(ts.URL)
		err := notifier.Notify(context.Background(), alert.NewConnectionLostAlert(testService, errors.New("redis down")))
		require.NoError(t, err)
		assert.True(t, called.Load(), "handler should have been called")
	})

	t.Run("successful notification with bearer token", func(t *testing.T) {
		t.Parallel()
		var called atomic.Bool

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called.Store(true)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		notifier := alert.NewHTTPAlertNotifier(ts.URL, alert.NotifierWithBearerToken("test-token"))
		err := notifier.Notify(context.Background(), alert.NewConnectionRecoveredAlert(testService))
		require.NoError(t, err)
		assert.True(t, called.Load(), "handler should have been called")
	})

	t.Run("server error returns error", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		notifier := alert.NewHTTPAlertNotifier(ts.URL)
		err := notifier.Notify(context.Background(), alert.NewConnectionRecoveredAlert(testService))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("timeout returns error", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		notifier := alert.NewHTTPAlertNotifier(ts.URL, alert.NotifierWithTimeout(50*time.Millisecond))
		err := notifier.Notify(context.Background(), alert.NewLivenessAlert(false, testService, time.Now()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send alert")
	})
}

func TestLogAlertNotifier(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	notifier := alert.NewLogAlertNotifier(logging.FromZap(zap.New(core)))

	ctx := context.Background()
	require.NoError(t, notifier.Notify(ctx, alert.NewConnectionLostAlert(testService, errors.New("boom"))))
	require.NoError(t, notifier.Notify(ctx, alert.NewConnectionRecoveredAlert(testService)))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, alert.TopicConnectionLost, entries[0].ContextMap()["alert_topic"])
	assert.Equal(t, "boom", entries[0].ContextMap()["cause"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

type recordingNotifier struct {
	alerts []alert.Alert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, a alert.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func TestMultiAlertNotifier(t *testing.T) {
	t.Parallel()

	first := &recordingNotifier{err: errors.New("first failed")}
	second := &recordingNotifier{}
	notifier := alert.NewMultiAlertNotifier(first, nil, second)

	err := notifier.Notify(context.Background(), alert.NewConnectionRecoveredAlert(testService))
	assert.EqualError(t, err, "first failed")
	assert.Len(t, first.alerts, 1)
	assert.Len(t, second.alerts, 1, "a failing notifier must not block the others")
}
