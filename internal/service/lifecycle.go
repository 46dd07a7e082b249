package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hookdeck/hostnode/internal/adminctx"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/hookdeck/hostnode/internal/timer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Start initializes the manager, registers the service and launches its
// activities. It must be called once. Activities derive from ctx:
// cancelling it ends them like Stop does.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Audit(fmt.Sprintf("Starting %s node (version %s)", s.identity.Topic, s.version), s.fields()...)

	if err := s.manager.InitHost(adminctx.New(ctx)); err != nil {
		return fmt.Errorf("manager %s init host: %w", s.managerType, err)
	}

	reg, err := s.getOrCreateRegistration(adminctx.New(ctx))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	s.mu.Lock()
	s.serviceID = reg.ID
	s.mu.Unlock()

	if err := s.startActivities(ctx); err != nil {
		s.Stop()
		return err
	}

	s.logger.Ctx(ctx).Info("service started", s.fields(
		zap.String("service_id", reg.ID),
		zap.Duration("report_interval", s.reportInterval),
		zap.Duration("periodic_interval", s.periodicInterval))...)
	return nil
}

func (s *Service) startActivities(ctx context.Context) error {
	if s.reportInterval > 0 {
		if s.bus != nil {
			for _, topic := range []string{s.identity.Topic, s.identity.Topic + "." + s.identity.Host} {
				b, err := s.bind(ctx, topic)
				if err != nil {
					return fmt.Errorf("failed to bind consumer on %s: %w", topic, err)
				}
				s.addActivity(b)
			}
		} else {
			s.logger.Ctx(ctx).Warn("no message bus, remote commands are disabled", s.fields()...)
		}

		heartbeat := timer.New("heartbeat:"+s.identity.Binary, s.heartbeatTick,
			timer.WithLogger(s.logger))
		if err := heartbeat.Start(ctx, s.reportInterval); err != nil {
			return err
		}
		s.addActivity(heartbeat)
	}

	if s.periodicInterval > 0 {
		periodic := timer.New("periodic:"+s.identity.Binary, s.PeriodicTasks,
			timer.WithLogger(s.logger))
		if err := periodic.Start(ctx, s.periodicInterval); err != nil {
			return err
		}
		s.addActivity(periodic)
	}
	return nil
}

func (s *Service) addActivity(a Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
}

// getOrCreateRegistration looks the service up by (host, binary) and
// creates it when missing. Losing a creation race to another process adopts
// the winner's record.
func (s *Service) getOrCreateRegistration(ctx context.Context) (*driver.Registration, error) {
	reg, err := s.store.GetByArgs(ctx, s.identity.Host, s.identity.Binary)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, driver.ErrServiceNotFound) {
		return nil, err
	}
	return s.createRegistration(ctx)
}

func (s *Service) createRegistration(ctx context.Context) (*driver.Registration, error) {
	reg, err := s.store.Create(ctx, driver.Registration{
		Host:             s.identity.Host,
		Binary:           s.identity.Binary,
		Topic:            s.identity.Topic,
		ReportCount:      0,
		AvailabilityZone: s.availabilityZone,
	})
	if errors.Is(err, driver.ErrDuplicateService) {
		return s.store.GetByArgs(ctx, s.identity.Host, s.identity.Binary)
	}
	return reg, err
}

// Stop stops every activity. Individual failures are logged, never
// returned. Stopped activities are kept for Wait. Stop is idempotent.
func (s *Service) Stop() error {
	s.mu.Lock()
	activities := s.activities
	s.activities = nil
	s.stopped = append(s.stopped, activities...)
	s.mu.Unlock()

	for _, a := range activities {
		if err := a.Stop(); err != nil {
			s.logger.Warn("failed to stop activity", s.fields(
				zap.String("activity", a.Name()),
				zap.Error(err))...)
		}
	}
	return nil
}

// Wait blocks until every activity, running or stopped, has terminated.
// It does not stop anything. Wait errors are logged, never returned.
func (s *Service) Wait() error {
	s.mu.Lock()
	activities := make([]Activity, 0, len(s.stopped)+len(s.activities))
	activities = append(activities, s.stopped...)
	activities = append(activities, s.activities...)
	s.mu.Unlock()

	var g errgroup.Group
	for _, a := range activities {
		g.Go(func() error {
			if err := a.Wait(); err != nil {
				s.logger.Warn("activity ended with error", s.fields(
					zap.String("activity", a.Name()),
					zap.Error(err))...)
			}
			return nil
		})
	}
	g.Wait()

	s.mu.Lock()
	s.stopped = nil
	s.mu.Unlock()
	return nil
}

// Kill stops the service and removes its registration. A registration that
// is already gone is only worth a warning.
func (s *Service) Kill(ctx context.Context) error {
	s.Stop()

	// Wait out an in-flight heartbeat so it cannot recreate the record.
	s.reportMu.Lock()
	s.killed = true
	s.reportMu.Unlock()

	id := s.ServiceID()
	if id == "" {
		return nil
	}
	err := s.store.Delete(adminctx.New(ctx), id)
	if errors.Is(err, driver.ErrServiceNotFound) {
		s.logger.Ctx(ctx).Warn("service record already removed", s.fields(zap.String("service_id", id))...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete service %s: %w", id, err)
	}
	s.logger.Ctx(ctx).Info("service record removed", s.fields(zap.String("service_id", id))...)
	return nil
}
