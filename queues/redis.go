package queues

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps tasks in redis lists, one list per physical queue.
// BLPOP gives a true multi-key blocking pop with list-order priority,
// which is why redis is the default backend.
type RedisQueue struct {
	client *redis.Client
	watch  []string
}

func NewRedisQueue(ctx context.Context, urlStr string, watch []string) (*RedisQueue, error) {
	options, err := redis.ParseURL(urlStr)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisQueue{
		client: client,
		watch:  watch,
	}, nil
}

func (q *RedisQueue) Total() (total uint64) {
	ctx := context.Background()
	for _, key := range q.watch {
		if n, err := q.client.LLen(ctx, key).Result(); err == nil {
			total += uint64(n)
		}
	}

	return
}

func (q *RedisQueue) Shutdown() error {
	return q.client.Close()
}

func (q *RedisQueue) Push(ctx context.Context, queue string, payload []byte) error {
	return q.client.LPush(ctx, queue, payload).Err()
}

func (q *RedisQueue) BlockingPop(ctx context.Context, queues []string) (string, []byte, error) {
	result, err := q.client.BLPop(ctx, 0, queues...).Result()
	if err != nil {
		return "", nil, err
	}

	// result[0] == key
	if len(result) < 2 {
		return "", nil, nil
	}

	return result[0], []byte(result[1]), nil
}
