package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention keeps expired cooldown entries around long enough to be
// inspected before Redis evicts them.
const DefaultRetention = 24 * time.Hour

// RedisTracker persists cooldowns in Redis so they survive restarts.
// The stored value is the expiry instant; the key TTL only bounds retention.
type RedisTracker struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

func NewRedisTracker(client redis.Cmdable, prefix string, retention time.Duration) *RedisTracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisTracker{client: client, prefix: prefix, retention: retention}
}

// DialRedis parses url, pings the server and returns a connected client.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisTracker) key(requesterID string) string {
	return r.prefix + requesterID
}

func (r *RedisTracker) Expiry(ctx context.Context, requesterID string) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, r.key(requesterID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown for %s: %w", requesterID, err)
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown for %s: %w", requesterID, err)
	}
	return until, true, nil
}

func (r *RedisTracker) Set(ctx context.Context, requesterID string, until time.Time) error {
	value := until.UTC().Format(time.RFC3339Nano)
	if err := r.client.Set(ctx, r.key(requesterID), value, r.retention).Err(); err != nil {
		return fmt.Errorf("set cooldown for %s: %w", requesterID, err)
	}
	return nil
}
