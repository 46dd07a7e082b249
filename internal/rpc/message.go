// Package rpc carries remote commands over the message bus. A cast is a
// fire-and-forget Message; a call additionally names a reply topic the
// receiver publishes a Reply to.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("invalid rpc message")

type Message struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
}

func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if m.Method == "" {
		return fmt.Errorf("%w: missing method", ErrInvalidMessage)
	}
	return nil
}

func decodeMessage(body []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

type Reply struct {
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
}

// Failure describes an error raised by the remote side.
type Failure struct {
	Message string `json:"message"`
}

// RemoteError is returned by Client.Call when the remote side failed.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %s", e.Method, e.Message)
}

func encodeArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(args)
}
