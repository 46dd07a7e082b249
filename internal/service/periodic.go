package service

import (
	"context"

	"github.com/hookdeck/hostnode/internal/adminctx"
)

// PeriodicTasks runs the manager's periodic work once on a fresh admin
// context. The timer running it logs the failure and keeps going.
func (s *Service) PeriodicTasks(ctx context.Context) error {
	ctx = adminctx.New(ctx)
	err := s.manager.PeriodicTasks(ctx)
	s.metrics.periodicRun(ctx, err)
	return err
}
