// Package consumer drains a bus subscription into a MessageHandler.
package consumer

import (
	"context"

	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/mqs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Consumer interface {
	Run(context.Context) error
}

type MessageHandler interface {
	Handle(context.Context, *mqs.Message) error
}

type MessageHandlerFunc func(context.Context, *mqs.Message) error

func (f MessageHandlerFunc) Handle(ctx context.Context, msg *mqs.Message) error {
	return f(ctx, msg)
}

type consumerImplOptions struct {
	name        string
	concurrency int
	autoAck     bool
	logger      *logging.Logger
}

func WithName(name string) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.name = name
	}
}

func WithConcurrency(concurrency int) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.concurrency = concurrency
	}
}

func WithLogger(logger *logging.Logger) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.logger = logger
	}
}

// WithAutoAck acks messages whose handler returned nil and nacks the rest.
// Without it the handler owns acknowledgement.
func WithAutoAck(enabled bool) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.autoAck = enabled
	}
}

func New(subscription mqs.Subscription, handler MessageHandler, opts ...func(*consumerImplOptions)) Consumer {
	options := &consumerImplOptions{
		concurrency: 1,
		autoAck:     true,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.concurrency < 1 {
		options.concurrency = 1
	}
	return &consumerImpl{
		subscription:        subscription,
		handler:             handler,
		consumerImplOptions: *options,
	}
}

type consumerImpl struct {
	consumerImplOptions
	subscription mqs.Subscription
	handler      MessageHandler
}

var _ Consumer = &consumerImpl{}

// Run receives until ctx is done or the subscription fails. Cancellation is
// a clean stop and returns nil. Handlers already running are waited for and
// keep a context that outlives ctx.
func (c *consumerImpl) Run(ctx context.Context) error {
	defer c.subscription.Shutdown(context.WithoutCancel(ctx))

	tracer := otel.GetTracerProvider().Tracer("github.com/hookdeck/hostnode/internal/consumer")
	handlerBase := context.WithoutCancel(ctx)

	var subscriptionErr error

	sem := make(chan struct{}, c.concurrency)
recvLoop:
	for {
		msg, err := c.subscription.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				subscriptionErr = err
			}
			break recvLoop
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			msg.Nack()
			break recvLoop
		}

		go func() {
			defer func() { <-sem }()

			handlerCtx, span := tracer.Start(handlerBase, c.actionWithName("Consumer.Handle"))
			span.SetAttributes(attribute.String("messaging.message.id", msg.LoggableID))
			defer span.End()

			handleErr := c.handler.Handle(handlerCtx, msg)
			if handleErr != nil {
				span.RecordError(handleErr)
				span.SetStatus(codes.Error, handleErr.Error())
				if c.logger != nil {
					c.logger.Ctx(handlerCtx).Error("consumer handler error",
						zap.String("name", c.name),
						zap.Error(handleErr))
				}
			}
			if !c.autoAck {
				return
			}
			if handleErr != nil {
				msg.Nack()
			} else {
				msg.Ack()
			}
		}()
	}

	// Wait for in-flight handlers by taking every semaphore slot.
	for n := 0; n < c.concurrency; n++ {
		sem <- struct{}{}
	}

	return subscriptionErr
}

func (c *consumerImpl) actionWithName(action string) string {
	if c.name == "" {
		return action
	}
	return c.name + "." + action
}
