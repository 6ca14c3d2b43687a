package publish

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher delivers outcome events over Redis pub/sub.
type RedisPublisher struct {
	db *redis.Client
}

func NewRedisPublisher(connString string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{db: redis.NewClient(opts)}, nil
}

func (r *RedisPublisher) Publish(ctx context.Context, channel, data string) error {
	return r.db.Publish(ctx, channel, data).Err()
}

func (r *RedisPublisher) Close() error {
	return r.db.Close()
}
