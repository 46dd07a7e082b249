package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hookdeck/hostnode/internal/infra"
	"github.com/hookdeck/hostnode/internal/mqinfra"
	"github.com/hookdeck/hostnode/internal/mqs"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Namespace = "HostNode"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".hostnode.yaml",
		"config/hostnode.yaml",
		"config/hostnode/config.yaml",
		"config/hostnode/.env",

		// Container-friendly absolute paths
		"/config/hostnode.yaml",
		"/config/hostnode/config.yaml",
		"/config/hostnode/.env",
	}
}

type Config struct {
	validated  bool
	configPath string

	OpenTelemetry *OpenTelemetryConfig `yaml:"open_telemetry"`

	// Identity
	Host         string            `yaml:"host" env:"NODE_HOST"`
	Binary       string            `yaml:"binary" env:"BINARY"`
	BinaryPrefix string            `yaml:"binary_prefix" env:"BINARY_PREFIX"`
	Topic        string            `yaml:"topic" env:"TOPIC"`
	Manager      string            `yaml:"manager" env:"MANAGER"`
	Managers     map[string]string `yaml:"managers" env:"MANAGERS" envSeparator:"," envKeyValSeparator:":"`
	Services     []ServiceConfig   `yaml:"services"`

	// Timing
	ReportIntervalSeconds   int `yaml:"report_interval_seconds" env:"REPORT_INTERVAL_SECONDS" validate:"gte=1"`
	PeriodicIntervalSeconds int `yaml:"periodic_interval_seconds" env:"PERIODIC_INTERVAL_SECONDS" validate:"gte=1"`
	ServiceDownTimeSeconds  int `yaml:"service_down_time_seconds" env:"SERVICE_DOWN_TIME_SECONDS" validate:"gte=1"`
	RegistryTimeoutSeconds  int `yaml:"registry_timeout_seconds" env:"REGISTRY_TIMEOUT_SECONDS" validate:"gte=0"`

	NodeAvailabilityZone string `yaml:"node_availability_zone" env:"NODE_AVAILABILITY_ZONE"`

	// Logging
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error fatal"`
	AuditLog     bool   `yaml:"audit_log" env:"AUDIT_LOG"`
	DeploymentID string `yaml:"deployment_id" env:"DEPLOYMENT_ID"`

	// HTTP
	HealthPort int    `yaml:"health_port" env:"HEALTH_PORT" validate:"gte=0,lte=65535"`
	GinMode    string `yaml:"gin_mode" env:"GIN_MODE" validate:"omitempty,oneof=debug release test"`

	// Infrastructure
	Store       string       `yaml:"store" env:"STORE" validate:"oneof=redis postgres memory"`
	Redis       *RedisConfig `yaml:"redis"`
	PostgresURL string       `yaml:"postgres_url" env:"POSTGRES_URL"`
	MQs         *MQsConfig   `yaml:"mqs"`

	Alert AlertConfig `yaml:"alert"`
	IDGen IDGenConfig `yaml:"idgen"`
}

var (
	ErrMissingHost     = errors.New("host could not be resolved")
	ErrMissingRedis    = errors.New("redis configuration is required")
	ErrMissingPostgres = errors.New("postgres_url is required when store is postgres")
	ErrInvalidService  = errors.New("invalid service entry")
)

func (c *Config) initDefaults(osInterface OSInterface) {
	if hostname, err := osInterface.Hostname(); err == nil {
		c.Host = hostname
	}
	c.BinaryPrefix = "hostnode-"
	c.Managers = map[string]string{}
	c.ReportIntervalSeconds = 10
	c.PeriodicIntervalSeconds = 60
	c.ServiceDownTimeSeconds = 60
	c.NodeAvailabilityZone = "nova"
	c.LogLevel = "info"
	c.HealthPort = 3333
	c.GinMode = "release"
	c.Store = "redis"
	c.Redis = &RedisConfig{
		Host: "127.0.0.1",
		Port: 6379,
	}
	c.MQs = &MQsConfig{
		RabbitMQ: &RabbitMQConfig{
			Exchange: "hostnode",
		},
	}
	c.IDGen = IDGenConfig{
		Type: "uuidv4",
	}
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if configPath == "" {
		return nil
	}

	data, err := osInterface.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	c.configPath = configPath

	if strings.HasSuffix(strings.ToLower(configPath), ".env") {
		envMap, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		if err := env.ParseWithOptions(c, env.Options{
			Environment: envMap,
		}); err != nil {
			return fmt.Errorf("error parsing .env file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error parsing yaml config: %w", err)
		}
	}
	return nil
}

func (c *Config) parseEnvVariables(osInterface OSInterface) error {
	if err := env.ParseWithOptions(c, env.Options{
		Environment: environMap(osInterface.Environ()),
	}); err != nil {
		return fmt.Errorf("error parsing environment variables: %w", err)
	}
	return nil
}

// applyFlags lets command line values take precedence over file and env.
func (c *Config) applyFlags(flags Flags) {
	if flags.Host != "" {
		c.Host = flags.Host
	}
	if flags.Binary != "" {
		c.Binary = flags.Binary
	}
	if flags.Topic != "" {
		c.Topic = flags.Topic
	}
	if flags.Manager != "" {
		c.Manager = flags.Manager
	}
}

func Parse(flags Flags) (*Config, error) {
	return ParseWithOS(flags, defaultOS)
}

// ParseWithOS resolves the configuration in order: defaults, config file,
// environment and finally flags.
func ParseWithOS(flags Flags, osInterface OSInterface) (*Config, error) {
	var config Config

	config.initDefaults(osInterface)

	if err := config.parseConfigFile(flags.Config, osInterface); err != nil {
		return nil, err
	}

	if err := config.parseEnvVariables(osInterface); err != nil {
		return nil, err
	}

	config.applyFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ConfigFilePath returns the file the configuration was loaded from, if any.
func (c *Config) ConfigFilePath() string {
	return c.configPath
}

func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.PeriodicIntervalSeconds) * time.Second
}

func (c *Config) ServiceDownTime() time.Duration {
	return time.Duration(c.ServiceDownTimeSeconds) * time.Second
}

func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.RegistryTimeoutSeconds) * time.Second
}

// DefaultBinary derives the binary name from the executable path.
func DefaultBinary(executable string) string {
	return filepath.Base(executable)
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

type RedisConfig struct {
	Host           string `yaml:"host" env:"REDIS_HOST"`
	Port           int    `yaml:"port" env:"REDIS_PORT"`
	Password       string `yaml:"password" env:"REDIS_PASSWORD"`
	Database       int    `yaml:"database" env:"REDIS_DATABASE"`
	TLSEnabled     bool   `yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
	ClusterEnabled bool   `yaml:"cluster_enabled" env:"REDIS_CLUSTER_ENABLED"`
}

func (c *RedisConfig) ToConfig() *redis.RedisConfig {
	return &redis.RedisConfig{
		Host:           c.Host,
		Port:           c.Port,
		Password:       c.Password,
		Database:       c.Database,
		TLSEnabled:     c.TLSEnabled,
		ClusterEnabled: c.ClusterEnabled,
	}
}

type RabbitMQConfig struct {
	ServerURL string `yaml:"server_url" env:"RABBITMQ_SERVER_URL"`
	Exchange  string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
}

type MQsConfig struct {
	AutoProvision *bool           `yaml:"auto_provision" env:"MQS_AUTO_PROVISION"`
	RetryLimit    int             `yaml:"retry_limit" env:"MQS_RETRY_LIMIT" validate:"gte=0"`
	RabbitMQ      *RabbitMQConfig `yaml:"rabbitmq"`
}

// ToBus returns the message bus matching GetInfraType.
func (c *MQsConfig) ToBus() mqs.Bus {
	if c.GetInfraType() == "rabbitmq" {
		return mqs.NewRabbitMQBus(&mqs.RabbitMQConfig{
			ServerURL: c.RabbitMQ.ServerURL,
			Exchange:  c.RabbitMQ.Exchange,
		})
	}
	return mqs.NewInMemoryBus()
}

func (c *MQsConfig) ToInfraConfig() infra.Config {
	cfg := infra.Config{}
	if c == nil {
		return cfg
	}
	cfg.AutoProvision = c.AutoProvision
	if c.GetInfraType() == "rabbitmq" {
		cfg.MQ = &mqinfra.MQInfraConfig{
			RabbitMQ: &mqs.RabbitMQConfig{
				ServerURL: c.RabbitMQ.ServerURL,
				Exchange:  c.RabbitMQ.Exchange,
			},
			Policy: mqinfra.Policy{RetryLimit: c.RetryLimit},
		}
	}
	return cfg
}

// GetInfraType reports which message bus is configured. Without a RabbitMQ
// server the process falls back to an in-memory bus.
func (c *MQsConfig) GetInfraType() string {
	if c != nil && c.RabbitMQ != nil && c.RabbitMQ.ServerURL != "" {
		return "rabbitmq"
	}
	return "inmemory"
}

type AlertConfig struct {
	CallbackURL string `yaml:"callback_url" env:"ALERT_CALLBACK_URL" validate:"omitempty,url"`
	BearerToken string `yaml:"bearer_token" env:"ALERT_BEARER_TOKEN"`
}

// IDGenConfig is the configuration for registration id generation
type IDGenConfig struct {
	Type               string `yaml:"type" env:"IDGEN_TYPE" validate:"omitempty,oneof=uuidv4 uuidv7 nanoid"`
	RegistrationPrefix string `yaml:"registration_prefix" env:"IDGEN_REGISTRATION_PREFIX"`
}
