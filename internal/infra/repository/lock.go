package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "publishing:lock:"

// RedisLock implements the advisory cross-process lock with a single
// SET NX. There is no retry and no release: the TTL is the lease, and
// a crashed holder simply expires.
type RedisLock struct {
	rdb *redis.Client
}

func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{rdb: rdb}
}

func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, lockKeyPrefix+name, "1", ttl).Result()
}
