package config

import (
	"github.com/hookdeck/hostnode/internal/otel"
)

type OpenTelemetryTypeConfig struct {
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol" validate:"omitempty,oneof=grpc http"`
}

type OpenTelemetryConfig struct {
	ServiceName string                   `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Traces      *OpenTelemetryTypeConfig `yaml:"traces"`
	Metrics     *OpenTelemetryTypeConfig `yaml:"metrics"`
	Logs        *OpenTelemetryTypeConfig `yaml:"logs"`
}

// ToOTELConfig returns nil when OpenTelemetry is not configured.
func (c *OpenTelemetryConfig) ToOTELConfig() *otel.OpenTelemetryConfig {
	if c == nil || c.ServiceName == "" {
		return nil
	}

	return &otel.OpenTelemetryConfig{
		ServiceName: c.ServiceName,
		Traces:      c.Traces.toOTEL(),
		Metrics:     c.Metrics.toOTEL(),
		Logs:        c.Logs.toOTEL(),
	}
}

func (c *OpenTelemetryTypeConfig) toOTEL() *otel.OpenTelemetryTypeConfig {
	if c == nil || (c.Endpoint == "" && c.Exporter != otel.ExporterStdout) {
		return nil
	}
	protocol := c.Protocol
	if protocol == "" {
		protocol = otel.ProtocolGRPC
	}
	return &otel.OpenTelemetryTypeConfig{
		Exporter: c.Exporter,
		Endpoint: c.Endpoint,
		Protocol: protocol,
	}
}
