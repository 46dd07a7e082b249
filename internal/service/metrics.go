package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type serviceMetrics struct {
	heartbeats  metric.Int64Counter
	transitions metric.Int64Counter
	periodic    metric.Int64Counter
	rpc         metric.Int64Counter
}

func newServiceMetrics(meter metric.Meter) (*serviceMetrics, error) {
	heartbeats, err := meter.Int64Counter("hostnode.service.heartbeats",
		metric.WithDescription("Heartbeats attempted, by outcome"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("hostnode.service.connectivity_transitions",
		metric.WithDescription("Registry connectivity changes, by new state"))
	if err != nil {
		return nil, err
	}
	periodic, err := meter.Int64Counter("hostnode.service.periodic_runs",
		metric.WithDescription("Manager periodic task runs, by outcome"))
	if err != nil {
		return nil, err
	}
	rpc, err := meter.Int64Counter("hostnode.service.rpc_dispatched",
		metric.WithDescription("Remote operations dispatched, by method and outcome"))
	if err != nil {
		return nil, err
	}
	return &serviceMetrics{
		heartbeats:  heartbeats,
		transitions: transitions,
		periodic:    periodic,
		rpc:         rpc,
	}, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", outcomeFailure)
	}
	return attribute.String("outcome", outcomeSuccess)
}

func (m *serviceMetrics) heartbeat(ctx context.Context, err error) {
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *serviceMetrics) transition(ctx context.Context, disconnected bool) {
	state := "connected"
	if disconnected {
		state = "disconnected"
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *serviceMetrics) periodicRun(ctx context.Context, err error) {
	m.periodic.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *serviceMetrics) dispatched(ctx context.Context, method string, err error) {
	m.rpc.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method), outcome(err)))
}
