package dialer

import (
	"context"
	"time"

	"amd-dashboard/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps in-flight outbound calls per user via the Redis dial-slot
// scripts. A slot is taken before the provider call is placed and released on
// the terminal status callback; the TTL reclaims slots for calls whose
// terminal callback never arrives.
//
// A nil Limiter (or one without a Redis client) allows everything, so tests
// and single-user local setups need no Redis.
type Limiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewLimiter(rdb *redis.Client, limit int, ttl time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *Limiter) Acquire(ctx context.Context, userID string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	return utils.AcquireDialSlot(ctx, l.rdb, slotKey(userID), l.limit, l.ttl)
}

func (l *Limiter) Release(ctx context.Context, userID string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return utils.ReleaseDialSlot(ctx, l.rdb, slotKey(userID))
}

func slotKey(userID string) string {
	return "dialslots:user:" + userID
}
