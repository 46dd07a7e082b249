// Package adminctx builds the administrative execution context handed to
// registry calls and manager entry points that run outside of any request.
package adminctx

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// Actor describes who is executing an operation.
type Actor struct {
	RequestID string
	IsAdmin   bool
	Timestamp time.Time
}

// New returns a fresh admin context derived from parent. Every call gets its
// own request id.
func New(parent context.Context) context.Context {
	return context.WithValue(parent, contextKey{}, Actor{
		RequestID: "req-" + uuid.New().String(),
		IsAdmin:   true,
		Timestamp: time.Now().UTC(),
	})
}

// WithActor attaches an explicit actor, e.g. one decoded from an RPC message.
func WithActor(parent context.Context, actor Actor) context.Context {
	return context.WithValue(parent, contextKey{}, actor)
}

// FromContext returns the actor carried by ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

// IsAdmin reports whether ctx carries an admin actor.
func IsAdmin(ctx context.Context) bool {
	actor, ok := FromContext(ctx)
	return ok && actor.IsAdmin
}
