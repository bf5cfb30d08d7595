package callsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shelter-platform/pkg/utils"
)

// RunGuard keeps two scheduled invocations of the same scope from overlapping.
// It guards the job, not the store: writers stay lock-free.
type RunGuard interface {
	Acquire(ctx context.Context, scope string) (release func(), err error)
}

// NoopGuard admits every run. Used when redis is not configured.
type NoopGuard struct{}

func (NoopGuard) Acquire(ctx context.Context, scope string) (func(), error) {
	return func() {}, nil
}

const guardKeyPrefix = "callsync:run:"

// RedisGuard holds a SET NX lease per scope. The TTL frees leases of crashed runs.
type RedisGuard struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisGuard(rdb redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, scope string) (func(), error) {
	key := guardKeyPrefix + scope
	owner := uuid.NewString()
	if err := utils.AcquireLease(ctx, g.rdb, key, owner, g.ttl); err != nil {
		if errors.Is(err, utils.ErrLeaseHeld) {
			return nil, ErrRunInProgress
		}
		return nil, err
	}
	return func() {
		// The run's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseLease(releaseCtx, g.rdb, key, owner)
	}, nil
}
