package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hookdeck/hostnode/internal/adminctx"
	"github.com/hookdeck/hostnode/internal/consumer"
	"github.com/hookdeck/hostnode/internal/manager"
	"github.com/hookdeck/hostnode/internal/rpc"
)

const (
	OpServiceInfo = "service_info"
	OpReportState = "report_state"
)

var _ rpc.Dispatcher = (*Service)(nil)

func (s *Service) runtimeOperations() map[string]manager.Operation {
	return map[string]manager.Operation{
		OpServiceInfo: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.Info(), nil
		},
		OpReportState: func(ctx context.Context, _ json.RawMessage) (any, error) {
			if err := s.ReportState(ctx); err != nil {
				return nil, err
			}
			return s.Info(), nil
		},
	}
}

// Dispatch runs the named operation. The runtime's own operations take
// precedence over the manager's.
func (s *Service) Dispatch(ctx context.Context, method string, args json.RawMessage) (any, error) {
	if _, ok := adminctx.FromContext(ctx); !ok {
		ctx = adminctx.New(ctx)
	}

	op, ok := s.operations[method]
	if !ok {
		op, ok = s.managerOps[method]
	}
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownOperation, method)
		s.metrics.dispatched(ctx, method, err)
		return nil, err
	}

	result, err := op(ctx, args)
	s.metrics.dispatched(ctx, method, err)
	return result, err
}

// binding is a consumer draining one topic into Dispatch.
type binding struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (s *Service) bind(ctx context.Context, topic string) (*binding, error) {
	sub, err := s.bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	c := consumer.New(sub, rpc.NewHandler(s.bus, s, s.logger),
		consumer.WithName(topic),
		consumer.WithConcurrency(1),
		consumer.WithLogger(s.logger))

	runCtx, cancel := context.WithCancel(ctx)
	b := &binding{
		name:   "consumer:" + topic,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		b.err = c.Run(runCtx)
	}()
	return b, nil
}

func (b *binding) Name() string {
	return b.name
}

func (b *binding) Stop() error {
	b.cancel()
	return nil
}

func (b *binding) Wait() error {
	<-b.done
	return b.err
}

var _ Activity = (*binding)(nil)
