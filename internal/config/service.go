package config

import (
	"fmt"
	"time"

	"github.com/hookdeck/hostnode/internal/service"
	"github.com/hookdeck/hostnode/internal/version"
)

// ServiceConfig describes one service hosted by the process. Zero values fall
// back to the process-wide settings; an explicit 0 interval disables the
// corresponding activity.
type ServiceConfig struct {
	Binary                  string `yaml:"binary"`
	Topic                   string `yaml:"topic"`
	Manager                 string `yaml:"manager"`
	ReportIntervalSeconds   *int   `yaml:"report_interval_seconds"`
	PeriodicIntervalSeconds *int   `yaml:"periodic_interval_seconds"`
}

func (s ServiceConfig) toOptions() service.Options {
	opts := service.Options{
		Binary:  s.Binary,
		Topic:   s.Topic,
		Manager: s.Manager,
	}
	if s.ReportIntervalSeconds != nil {
		d := time.Duration(*s.ReportIntervalSeconds) * time.Second
		opts.ReportInterval = &d
	}
	if s.PeriodicIntervalSeconds != nil {
		d := time.Duration(*s.PeriodicIntervalSeconds) * time.Second
		opts.PeriodicInterval = &d
	}
	return opts
}

// ToServiceDefaults builds the values service.Create falls back to when an
// option is unset.
func (c *Config) ToServiceDefaults() service.Defaults {
	managers := make(map[string]string, len(c.Managers)+1)
	for topic, manager := range c.Managers {
		managers[topic] = manager
	}
	if c.Manager != "" && c.Topic != "" {
		managers[c.Topic] = c.Manager
	}

	return service.Defaults{
		Host:             c.Host,
		Binary:           c.Binary,
		BinaryPrefix:     c.BinaryPrefix,
		Managers:         managers,
		ReportInterval:   c.ReportInterval(),
		PeriodicInterval: c.PeriodicInterval(),
		AvailabilityZone: c.NodeAvailabilityZone,
		Version:          version.Version(),
		RegistryTimeout:  c.RegistryTimeout(),
	}
}

// ServiceOptions lists the services the process should run. Without an
// explicit services list a single service is built from the top-level
// identity settings.
func (c *Config) ServiceOptions() []service.Options {
	if len(c.Services) == 0 {
		return []service.Options{{
			Host:    c.Host,
			Binary:  c.Binary,
			Topic:   c.Topic,
			Manager: c.Manager,
		}}
	}

	opts := make([]service.Options, 0, len(c.Services))
	for _, s := range c.Services {
		o := s.toOptions()
		o.Host = c.Host
		opts = append(opts, o)
	}
	return opts
}

func (c *Config) validateServices() error {
	for i, s := range c.Services {
		if s.Binary == "" && s.Topic == "" {
			return fmt.Errorf("%w: services[%d] needs a binary or a topic", ErrInvalidService, i)
		}
		if s.ReportIntervalSeconds != nil && *s.ReportIntervalSeconds < 0 {
			return fmt.Errorf("%w: services[%d] report_interval_seconds must not be negative", ErrInvalidService, i)
		}
		if s.PeriodicIntervalSeconds != nil && *s.PeriodicIntervalSeconds < 0 {
			return fmt.Errorf("%w: services[%d] periodic_interval_seconds must not be negative", ErrInvalidService, i)
		}
	}
	return nil
}
