package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookdeck/hostnode/internal/idgen"
	"github.com/hookdeck/hostnode/internal/mqs"
)

const (
	DefaultCallTimeout = 30 * time.Second
	replyTopicPrefix   = "reply."
)

var ErrCallTimeout = errors.New("rpc call timed out")

type Client struct {
	bus     mqs.Bus
	timeout time.Duration
}

type ClientOption func(*Client)

func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func NewClient(bus mqs.Bus, opts ...ClientOption) *Client {
	c := &Client{bus: bus, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cast publishes method to topic without waiting for the outcome.
func (c *Client) Cast(ctx context.Context, topic, method string, args any) error {
	msg, err := newMessage(method, args)
	if err != nil {
		return err
	}
	return c.publish(ctx, topic, msg)
}

// Call publishes method to topic and waits for the reply. When result is
// non-nil the reply's result is decoded into it.
func (c *Client) Call(ctx context.Context, topic, method string, args any, result any) error {
	msg, err := newMessage(method, args)
	if err != nil {
		return err
	}
	msg.ReplyTo = replyTopicPrefix + msg.ID

	sub, err := c.bus.Subscribe(ctx, msg.ReplyTo, mqs.Transient())
	if err != nil {
		return fmt.Errorf("failed to subscribe to reply topic: %w", err)
	}
	defer sub.Shutdown(context.WithoutCancel(ctx))

	if err := c.publish(ctx, topic, msg); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for {
		busMsg, err := sub.Receive(callCtx)
		if err != nil {
			if ctx.Err() == nil && callCtx.Err() != nil {
				return fmt.Errorf("%w: %s on %s", ErrCallTimeout, method, topic)
			}
			return err
		}
		busMsg.Ack()

		reply := &Reply{}
		if err := json.Unmarshal(busMsg.Body, reply); err != nil || reply.ID != msg.ID {
			continue
		}
		if reply.Failure != nil {
			return &RemoteError{Method: method, Message: reply.Failure.Message}
		}
		if result != nil && len(reply.Result) > 0 {
			return json.Unmarshal(reply.Result, result)
		}
		return nil
	}
}

func (c *Client) publish(ctx context.Context, topic string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, topic, body)
}

func newMessage(method string, args any) (*Message, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args: %w", err)
	}
	msg := &Message{
		ID:     idgen.MessageID(),
		Method: method,
		Args:   encoded,
	}
	return msg, msg.Validate()
}
