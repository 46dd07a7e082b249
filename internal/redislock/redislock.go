// Package redislock provides distributed locking using Redis.
//
// It is a single-instance SET NX PX lock as described in
// https://redis.io/docs/latest/develop/use/patterns/distributed-locks/ and
// may be held by two nodes under extreme circumstances. It only guards
// startup work that re-checks its own preconditions once the lock is held:
// declaring broker topology and applying schema migrations.
package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hookdeck/hostnode/internal/redis"
)

const (
	DefaultKey = "hostnode:lock"
	DefaultTTL = 10 * time.Second
)

type Lock interface {
	AttemptLock(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) (bool, error)
}

// Compare-and-act scripts. Both only touch the key while it still holds
// this lock's token.
const (
	unlockScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	refreshScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`
)

type redisLock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

type Option func(*redisLock)

func WithKey(key string) Option {
	return func(l *redisLock) {
		l.key = key
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(l *redisLock) {
		l.ttl = ttl
	}
}

// New returns a lock with a fresh random token. Two locks created with New
// never own each other's key, even in the same process.
func New(client redis.Cmdable, opts ...Option) Lock {
	lock := &redisLock{
		client: client,
		key:    DefaultKey,
		token:  uuid.NewString(),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(lock)
	}
	return lock
}

// AttemptLock reports whether the lock was acquired. A lock held by someone
// else is not an error.
func (l *redisLock) AttemptLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Refresh extends the TTL of a lock this instance still holds.
func (l *redisLock) Refresh(ctx context.Context) (bool, error) {
	return l.runOwned(ctx, refreshScript, l.ttl.Milliseconds())
}

// Unlock releases the lock if this instance still holds it. It reports false
// when the lock expired and was possibly taken over.
func (l *redisLock) Unlock(ctx context.Context) (bool, error) {
	return l.runOwned(ctx, unlockScript)
}

func (l *redisLock) runOwned(ctx context.Context, script string, extra ...any) (bool, error) {
	args := append([]any{l.token}, extra...)
	n, err := l.client.Eval(ctx, script, []string{l.key}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
