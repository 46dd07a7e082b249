package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	r "github.com/redis/go-redis/v9"
)

// Reexport go-redis's Nil constant for DX purposes.
const (
	Nil = r.Nil
)

type (
	Cmdable            = r.Cmdable
	MapStringStringCmd = r.MapStringStringCmd
	Pipeliner          = r.Pipeliner
	Tx                 = r.Tx
)

type Client interface {
	Cmdable
	Close() error
}

const (
	TxFailedErr = r.TxFailedErr
)

type Option func(*options)

type options struct {
	tracing bool
}

// WithTracing instruments the client with redisotel.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
	}
}

// New connects to Redis, pings it and optionally instruments it with
// OpenTelemetry tracing. Cluster mode is selected by config.ClusterEnabled.
func New(ctx context.Context, config *RedisConfig, opts ...Option) (Client, error) {
	o := &options{tracing: true}
	for _, opt := range opts {
		opt(o)
	}

	var (
		client Client
		err    error
	)
	if config.ClusterEnabled {
		client, err = newClusterClient(ctx, config)
	} else {
		client, err = newRegularClient(ctx, config)
	}
	if err != nil {
		return nil, err
	}

	if o.tracing {
		if err := instrumentTracing(client); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis tracing instrumentation failed: %w", err)
		}
	}
	return client, nil
}

// NewFromOptions wraps an already configured go-redis client. Used by tests
// pointing at miniredis.
func NewFromOptions(opts *r.Options) Client {
	return r.NewClient(opts)
}

func tlsConfig(config *RedisConfig) *tls.Config {
	if !config.TLSEnabled {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
	}
}

func newClusterClient(ctx context.Context, config *RedisConfig) (Client, error) {
	// Database is ignored in cluster mode; the client discovers the other nodes.
	clusterClient := r.NewClusterClient(&r.ClusterOptions{
		Addrs:     []string{config.Addr()},
		Password:  config.Password,
		TLSConfig: tlsConfig(config),
	})

	if err := clusterClient.Ping(ctx).Err(); err != nil {
		clusterClient.Close()
		return nil, fmt.Errorf("redis cluster client ping failed: %w", err)
	}
	return clusterClient, nil
}

func newRegularClient(ctx context.Context, config *RedisConfig) (Client, error) {
	regularClient := r.NewClient(&r.Options{
		Addr:      config.Addr(),
		Password:  config.Password,
		DB:        config.Database,
		TLSConfig: tlsConfig(config),
	})

	if err := regularClient.Ping(ctx).Err(); err != nil {
		regularClient.Close()
		return nil, fmt.Errorf("redis client ping failed: %w", err)
	}
	return regularClient, nil
}

func instrumentTracing(client Client) error {
	switch c := client.(type) {
	case *r.Client:
		return redisotel.InstrumentTracing(c)
	case *r.ClusterClient:
		return redisotel.InstrumentTracing(c)
	}
	return nil
}
