// README: Redis list used as the notification outbox.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when no job arrived within the wait.
var ErrEmpty = errors.New("notify: queue empty")

type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Pop blocks up to wait for the oldest job.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (Notification, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Notification{}, ErrEmpty
	}
	if err != nil {
		return Notification{}, fmt.Errorf("pop notification: %w", err)
	}
	// BRPOP replies with [key, value].
	var n Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
