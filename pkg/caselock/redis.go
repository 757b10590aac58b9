package caselock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const keyPrefix = "causa:lock:case:"

// releaseScript deletes the lock only when the stored token matches, so a
// slow holder can never release a lease that was stolen after expiry.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements the lease with SET NX PX; redis expires stale
// leases on its own.
type RedisLocker struct {
	client *redis.Client
	lease  time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to redis and verifies connectivity.
func NewRedisLocker(ctx context.Context, cfg *config.RedisConfig, lease time.Duration) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fault.New(fault.TransientBackend, component, "new_redis", "ping redis", err)
	}
	return &RedisLocker{client: client, lease: lease}, nil
}

func (r *RedisLocker) Acquire(ctx context.Context, caseID, owner string) (Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, keyPrefix+caseID, token, r.lease).Result()
	if err != nil {
		return Lease{}, fault.New(fault.TransientBackend, component, "acquire", "set lock key", err)
	}
	if !ok {
		return Lease{}, ErrBusy
	}
	return Lease{
		CaseID:   caseID,
		Owner:    owner,
		Token:    token,
		Deadline: time.Now().Add(r.lease),
	}, nil
}

func (r *RedisLocker) Release(ctx context.Context, lease Lease) error {
	err := releaseScript.Run(ctx, r.client, []string{keyPrefix + lease.CaseID}, lease.Token).Err()
	if err != nil && err != redis.Nil {
		return fault.New(fault.TransientBackend, component, "release", "run release script", err)
	}
	return nil
}

func (r *RedisLocker) SweepExpired(context.Context) (int, error) {
	// PX handles expiry server-side.
	return 0, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}
