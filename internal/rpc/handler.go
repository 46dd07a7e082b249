package rpc

import (
	"context"
	"encoding/json"

	"github.com/hookdeck/hostnode/internal/consumer"
	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/mqs"
	"go.uber.org/zap"
)

// Dispatcher executes a named operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, args json.RawMessage) (any, error)
}

type DispatcherFunc func(ctx context.Context, method string, args json.RawMessage) (any, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, method string, args json.RawMessage) (any, error) {
	return f(ctx, method, args)
}

// Handler decodes bus messages and hands them to a Dispatcher.
type Handler struct {
	bus        mqs.Bus
	dispatcher Dispatcher
	logger     *logging.Logger
}

var _ consumer.MessageHandler = (*Handler)(nil)

func NewHandler(bus mqs.Bus, dispatcher Dispatcher, logger *logging.Logger) *Handler {
	return &Handler{
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle dispatches one message. Malformed messages and failed operations
// are consumed: redelivering them cannot succeed. Only a failure to publish
// the reply is returned.
func (h *Handler) Handle(ctx context.Context, busMsg *mqs.Message) error {
	msg, err := decodeMessage(busMsg.Body)
	if err != nil {
		h.logger.Ctx(ctx).Warn("dropping malformed rpc message",
			zap.String("loggable_id", busMsg.LoggableID),
			zap.Error(err))
		return nil
	}

	logger := h.logger.Ctx(ctx).With(
		zap.String("rpc_id", msg.ID),
		zap.String("method", msg.Method))

	result, dispatchErr := h.dispatcher.Dispatch(ctx, msg.Method, msg.Args)
	if dispatchErr != nil {
		logger.Warn("rpc operation failed", zap.Error(dispatchErr))
	} else {
		logger.Debug("rpc operation handled")
	}

	if msg.ReplyTo == "" {
		return nil
	}

	reply := &Reply{ID: msg.ID}
	if dispatchErr != nil {
		reply.Failure = &Failure{Message: dispatchErr.Error()}
	} else if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			reply.Failure = &Failure{Message: "failed to encode result: " + err.Error()}
		} else {
			reply.Result = encoded
		}
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, msg.ReplyTo, body)
}
