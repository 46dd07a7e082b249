package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.validated = false

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Host == "" {
		return ErrMissingHost
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateServices(); err != nil {
		return err
	}

	c.validated = true
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store {
	case "redis":
		if c.Redis == nil || c.Redis.Host == "" {
			return ErrMissingRedis
		}
	case "postgres":
		if c.PostgresURL == "" {
			return ErrMissingPostgres
		}
	}
	return nil
}

// IsValidated reports whether the last Validate call succeeded.
func (c *Config) IsValidated() bool {
	return c.validated
}
