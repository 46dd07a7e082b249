// Package redisservicestore provides a Redis-backed implementation of driver.ServiceStore.
//
// Every registration is a hash. A string key per (host, binary) pair points at
// the registration id and a set holds all ids for listing. All keys share the
// {services} hash tag so the multi-key transactions stay on one cluster slot.
package redisservicestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hookdeck/hostnode/internal/idgen"
	"github.com/hookdeck/hostnode/internal/redis"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
)

type store struct {
	redisClient  redis.Cmdable
	deploymentID string
	now          func() time.Time
}

var _ driver.ServiceStore = (*store)(nil)

// Option configures a redisservicestore.
type Option func(*store)

// WithDeploymentID sets the deployment ID for key isolation.
func WithDeploymentID(deploymentID string) Option {
	return func(s *store) {
		s.deploymentID = deploymentID
	}
}

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *store) {
		s.now = now
	}
}

// New creates a new Redis-backed ServiceStore.
func New(redisClient redis.Cmdable, opts ...Option) driver.ServiceStore {
	s := &store{
		redisClient: redisClient,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) deploymentPrefix() string {
	if s.deploymentID == "" {
		return ""
	}
	return fmt.Sprintf("%s:", s.deploymentID)
}

func (s *store) serviceKey(id string) string {
	return fmt.Sprintf("%s{services}:service:%s", s.deploymentPrefix(), id)
}

func (s *store) argsKey(host, binary string) string {
	return fmt.Sprintf("%s{services}:args:%s:%s", s.deploymentPrefix(), host, binary)
}

func (s *store) indexKey() string {
	return s.deploymentPrefix() + "{services}:ids"
}

func (s *store) Init(ctx context.Context) error {
	return s.redisClient.Ping(ctx).Err()
}

func (s *store) Get(ctx context.Context, id string) (*driver.Registration, error) {
	hash, err := s.redisClient.HGetAll(ctx, s.serviceKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, driver.ErrServiceNotFound
	}
	return parseRegistrationHash(hash)
}

func (s *store) GetByArgs(ctx context.Context, host, binary string) (*driver.Registration, error) {
	id, err := s.redisClient.Get(ctx, s.argsKey(host, binary)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, driver.ErrServiceNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *store) Create(ctx context.Context, reg driver.Registration) (*driver.Registration, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if reg.ID == "" {
		reg.ID = idgen.Registration()
	}
	now := s.now().UTC()
	reg.CreatedAt = now
	reg.UpdatedAt = now

	if err := s.claimArgs(ctx, reg); err != nil {
		return nil, err
	}

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.serviceKey(reg.ID), registrationToHash(reg))
		pipe.SAdd(ctx, s.indexKey(), reg.ID)
		return nil
	})
	if err != nil {
		s.redisClient.Del(ctx, s.argsKey(reg.Host, reg.Binary))
		return nil, err
	}
	return &reg, nil
}

// claimArgs reserves the (host, binary) pair for reg. A pair pointing at a
// registration that no longer exists is taken over.
func (s *store) claimArgs(ctx context.Context, reg driver.Registration) error {
	key := s.argsKey(reg.Host, reg.Binary)
	ok, err := s.redisClient.SetNX(ctx, key, reg.ID, 0).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	existingID, err := s.redisClient.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	exists, err := s.redisClient.Exists(ctx, s.serviceKey(existingID)).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return driver.ErrDuplicateService
	}
	return s.redisClient.Set(ctx, key, reg.ID, 0).Err()
}

var updateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

func (s *store) Update(ctx context.Context, id string, update driver.ServiceUpdate) (*driver.Registration, error) {
	args := []interface{}{"updated_at", s.now().UTC().Format(time.RFC3339Nano)}
	if update.ReportCount != nil {
		args = append(args, "report_count", strconv.Itoa(*update.ReportCount))
	}
	if update.AvailabilityZone != nil {
		args = append(args, "availability_zone", *update.AvailabilityZone)
	}

	updated, err := s.redisClient.Eval(ctx, updateScript, []string{s.serviceKey(id)}, args...).Int()
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, driver.ErrServiceNotFound
	}
	return s.Get(ctx, id)
}

func (s *store) Delete(ctx context.Context, id string) error {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.serviceKey(id))
		pipe.Del(ctx, s.argsKey(reg.Host, reg.Binary))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	return err
}

func (s *store) List(ctx context.Context, req driver.ListRequest) ([]driver.Registration, error) {
	ids, err := s.redisClient.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []driver.Registration{}, nil
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.serviceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]driver.Registration, 0, len(ids))
	for _, cmd := range cmds {
		hash, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		// Skip ids whose hash was removed out of band.
		if len(hash) == 0 {
			continue
		}
		reg, err := parseRegistrationHash(hash)
		if err != nil {
			return nil, err
		}
		if req.Matches(*reg) {
			out = append(out, *reg)
		}
	}
	driver.SortRegistrations(out)
	return out, nil
}
