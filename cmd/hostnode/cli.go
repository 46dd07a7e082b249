package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hookdeck/hostnode/internal/app"
	"github.com/hookdeck/hostnode/internal/config"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/rpc"
	"github.com/hookdeck/hostnode/internal/services"
	"github.com/hookdeck/hostnode/internal/servicestore"
	"github.com/hookdeck/hostnode/internal/version"
	"github.com/urfave/cli/v3"
)

var errNoBroker = errors.New("remote calls need a message broker (mqs.rabbitmq.server_url)")

// NewCommand builds the hostnode command tree.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:    "hostnode",
		Usage:   "Worker service host",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host name services register under (overrides config)",
			},
			&cli.StringFlag{
				Name:  "binary",
				Usage: "Service binary name (overrides config)",
			},
			&cli.StringFlag{
				Name:  "topic",
				Usage: "Service topic (overrides config)",
			},
			&cli.StringFlag{
				Name:  "manager",
				Usage: "Manager type for the topic (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the configured services until interrupted",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return app.New(cfg).Run(ctx)
				},
			},
			{
				Name:      "call",
				Usage:     "Invoke an operation on a service over the message bus",
				ArgsUsage: "<topic> <method>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "args",
						Usage: "JSON encoded operation arguments",
					},
					&cli.BoolFlag{
						Name:  "cast",
						Usage: "Publish without waiting for a reply",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the reply",
						Value: rpc.DefaultCallTimeout,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.NArg() != 2 {
						return fmt.Errorf("call expects <topic> <method>, got %d arguments", c.NArg())
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return call(ctx, cfg, c.Args().Get(0), c.Args().Get(1), c.String("args"), c.Bool("cast"), c.Duration("timeout"), os.Stdout)
				},
			},
			{
				Name:  "list",
				Usage: "List registered services and their liveness",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "filter-topic",
						Usage: "Only list services on this topic",
					},
					&cli.StringFlag{
						Name:  "filter-host",
						Usage: "Only list services on this host",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return list(ctx, cfg, servicestore.ListRequest{
						Topic: c.String("filter-topic"),
						Host:  c.String("filter-host"),
					}, os.Stdout)
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
	}
}

func loadConfig(c *cli.Command) (*config.Config, error) {
	return config.Parse(config.Flags{
		Config:  c.String("config"),
		Host:    c.String("host"),
		Binary:  c.String("binary"),
		Topic:   c.String("topic"),
		Manager: c.String("manager"),
	})
}

func call(ctx context.Context, cfg *config.Config, topic, method, rawArgs string, cast bool, timeout time.Duration, out io.Writer) error {
	if cfg.MQs.GetInfraType() == "inmemory" {
		return errNoBroker
	}

	var args any
	if rawArgs != "" {
		if !json.Valid([]byte(rawArgs)) {
			return fmt.Errorf("--args is not valid JSON")
		}
		args = json.RawMessage(rawArgs)
	}

	bus := cfg.MQs.ToBus()
	cleanup, err := bus.Init(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	client := rpc.NewClient(bus, rpc.WithCallTimeout(timeout))
	if cast {
		return client.Cast(ctx, topic, method, args)
	}

	var result json.RawMessage
	if err := client.Call(ctx, topic, method, args, &result); err != nil {
		return err
	}
	if len(result) == 0 {
		return nil
	}
	_, err = fmt.Fprintln(out, string(result))
	return err
}

func list(ctx context.Context, cfg *config.Config, req servicestore.ListRequest, out io.Writer) error {
	var redisClient redis.Client
	if cfg.Store == "redis" {
		client, err := redis.New(ctx, cfg.Redis.ToConfig(), redis.WithTracing(false))
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
	}

	store, closeStore, err := services.NewServiceStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	regs, err := store.List(ctx, req)
	if err != nil {
		return err
	}
	return writeServices(out, regs, time.Now(), cfg.ServiceDownTime())
}

func writeServices(out io.Writer, regs []servicestore.Registration, now time.Time, downTime time.Duration) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBINARY\tHOST\tTOPIC\tZONE\tSTATE\tREPORTS\tUPDATED")
	for _, reg := range regs {
		state := "down"
		if servicestore.IsUp(reg, now, downTime) {
			state = "up"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			reg.ID, reg.Binary, reg.Host, reg.Topic, reg.AvailabilityZone,
			state, reg.ReportCount, reg.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
