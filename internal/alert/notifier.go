package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hookdeck/hostnode/internal/logging"
	"go.uber.org/zap"
)

const defaultNotifyTimeout = 5 * time.Second

// AlertNotifier delivers alerts.
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierOption configures the HTTP notifier.
type NotifierOption func(n *httpAlertNotifier)

// NotifierWithTimeout sets the per-request timeout. Zero keeps the default.
func NotifierWithTimeout(timeout time.Duration) NotifierOption {
	return func(n *httpAlertNotifier) {
		if timeout > 0 {
			n.client.Timeout = timeout
		}
	}
}

func NotifierWithBearerToken(token string) NotifierOption {
	return func(n *httpAlertNotifier) {
		n.bearerToken = token
	}
}

type httpAlertNotifier struct {
	client      *http.Client
	callbackURL string
	bearerToken string
}

// NewHTTPAlertNotifier posts every alert as JSON to callbackURL.
func NewHTTPAlertNotifier(callbackURL string, opts ...NotifierOption) AlertNotifier {
	n := &httpAlertNotifier{
		client:      &http.Client{Timeout: defaultNotifyTimeout},
		callbackURL: callbackURL,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *httpAlertNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.bearerToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert callback failed with status %d", resp.StatusCode)
	}
	return nil
}

type logAlertNotifier struct {
	logger *logging.Logger
}

// NewLogAlertNotifier writes alerts to the log. Connection loss and service
// down alerts are warnings.
func NewLogAlertNotifier(logger *logging.Logger) AlertNotifier {
	return &logAlertNotifier{logger: logger}
}

func (n *logAlertNotifier) Notify(ctx context.Context, alert Alert) error {
	fields := []zap.Field{zap.String("alert_topic", alert.AlertTopic())}
	switch a := alert.(type) {
	case ConnectivityAlert:
		fields = append(fields, serviceFields(a.Data.Service)...)
		if a.Data.Error != "" {
			fields = append(fields, zap.String("cause", a.Data.Error))
		}
	case LivenessAlert:
		fields = append(fields, serviceFields(a.Data.Service)...)
		fields = append(fields, zap.Time("updated_at", a.Data.UpdatedAt))
	}

	switch alert.AlertTopic() {
	case TopicConnectionLost, TopicServiceDown:
		n.logger.Ctx(ctx).Warn("service alert", fields...)
	default:
		n.logger.Ctx(ctx).Info("service alert", fields...)
	}
	return nil
}

func serviceFields(s ServiceRef) []zap.Field {
	return []zap.Field{
		zap.String("registration_id", s.RegistrationID),
		zap.String("host", s.Host),
		zap.String("binary", s.Binary),
		zap.String("topic", s.Topic),
	}
}

type multiAlertNotifier []AlertNotifier

// NewMultiAlertNotifier fans an alert out to every notifier and joins their
// errors. Nil notifiers are skipped.
func NewMultiAlertNotifier(notifiers ...AlertNotifier) AlertNotifier {
	var m multiAlertNotifier
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}

func (m multiAlertNotifier) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier builds the process notifier: always the log, plus the HTTP
// callback when one is configured.
func NewNotifier(logger *logging.Logger, callbackURL, bearerToken string) AlertNotifier {
	notifiers := []AlertNotifier{NewLogAlertNotifier(logger)}
	if callbackURL != "" {
		notifiers = append(notifiers, NewHTTPAlertNotifier(callbackURL, NotifierWithBearerToken(bearerToken)))
	}
	return NewMultiAlertNotifier(notifiers...)
}
