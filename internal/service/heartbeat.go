package service

import (
	"context"
	"errors"

	"github.com/hookdeck/hostnode/internal/adminctx"
	"github.com/hookdeck/hostnode/internal/alert"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"go.uber.org/zap"
)

// heartbeatTick is the timer callback. Registry failures are handled by the
// connectivity flag, so nothing is returned to the timer.
func (s *Service) heartbeatTick(ctx context.Context) error {
	s.ReportState(ctx)
	return nil
}

// ReportState bumps the registration's report count, recreating the record
// when it vanished. Registry failures flip the service to disconnected and
// the next success flips it back; each edge notifies exactly once. A record
// deleted mid-report leaves the flag alone and is recreated on the next tick.
// The registry error is returned for callers that want it.
func (s *Service) ReportState(ctx context.Context) error {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	if s.killed {
		return nil
	}

	ctx = adminctx.New(ctx)
	storeCtx := ctx
	if s.registryTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, s.registryTimeout)
		defer cancel()
	}

	err := s.reportState(storeCtx)
	s.metrics.heartbeat(ctx, err)
	switch {
	case err == nil:
		s.markConnected(ctx)
	case errors.Is(err, driver.ErrServiceNotFound):
		s.logger.Ctx(ctx).Warn("service record deleted during report, recreating on next tick",
			s.fields(zap.String("service_id", s.ServiceID()))...)
	default:
		s.markDisconnected(ctx, err)
	}
	return err
}

func (s *Service) reportState(ctx context.Context) error {
	id := s.ServiceID()
	reg, err := s.store.Get(ctx, id)
	if errors.Is(err, driver.ErrServiceNotFound) {
		s.logger.Ctx(ctx).Debug("service record missing, recreating", s.fields(zap.String("service_id", id))...)
		created, createErr := s.createRegistration(ctx)
		if createErr != nil {
			return createErr
		}
		s.mu.Lock()
		s.serviceID = created.ID
		s.mu.Unlock()
		reg, err = s.store.Get(ctx, created.ID)
	}
	if err != nil {
		return err
	}

	count := reg.ReportCount + 1
	_, err = s.store.Update(ctx, reg.ID, driver.ServiceUpdate{ReportCount: &count})
	return err
}

func (s *Service) markConnected(ctx context.Context) {
	s.mu.Lock()
	wasDisconnected := s.disconnected
	s.disconnected = false
	s.mu.Unlock()
	if !wasDisconnected {
		return
	}

	s.metrics.transition(ctx, false)
	s.logger.Ctx(ctx).Info("recovered registry connection", s.fields()...)
	s.notify(ctx, alert.NewConnectionRecoveredAlert(s.serviceRef()))
}

func (s *Service) markDisconnected(ctx context.Context, cause error) {
	s.mu.Lock()
	wasDisconnected := s.disconnected
	s.disconnected = true
	s.mu.Unlock()
	if wasDisconnected {
		s.logger.Ctx(ctx).Debug("registry still unreachable", s.fields(zap.Error(cause))...)
		return
	}

	s.metrics.transition(ctx, true)
	s.logger.Ctx(ctx).Error("lost registry connection", s.fields(zap.Error(cause))...)
	s.notify(ctx, alert.NewConnectionLostAlert(s.serviceRef(), cause))
}

func (s *Service) notify(ctx context.Context, a alert.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.Ctx(ctx).Warn("failed to deliver alert", s.fields(
			zap.String("alert_topic", a.AlertTopic()),
			zap.Error(err))...)
	}
}
