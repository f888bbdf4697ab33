package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the shared sequencer.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis hands out per-device numbers with INCR, so every service instance
// pointed at the same Redis shares one authoritative counter per device.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "seq:"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

// Next increments and returns the device counter.
func (r *Redis) Next(ctx context.Context, deviceID string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(deviceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

func (r *Redis) key(deviceID string) string {
	return r.prefix + deviceID
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
