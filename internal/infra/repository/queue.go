package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/contentgraph/publishing/internal/downstream"
)

// RedisQueue pushes propagation jobs onto per-channel redis lists.
// Workers BRPOP from the high list before the low one, which is what
// makes the channel split a priority scheme.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, channel string, payload downstream.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling downstream payload")
	}
	if err := q.rdb.LPush(ctx, channel, body).Err(); err != nil {
		return errors.Wrap(err, "pushing downstream payload")
	}
	return nil
}
