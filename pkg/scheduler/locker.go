package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const DefaultLockKey = "dripline:scheduler:lock"

// Locker grants a lease so that only one replica polls at a time.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (release ReleaseFunc, acquired bool, err error)
}

// ReleaseFunc gives a held lease back.
type ReleaseFunc func(ctx context.Context) error

type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, time.Duration) (ReleaseFunc, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds the lease as a Redis key with a random token. The lease
// expires on its own if the holder dies mid-tick.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
}

func NewRedisLocker(client redis.UniversalClient, key string) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}

	return &RedisLocker{client: client, key: key}
}

// NewRedisClient connects to a redis:// URL and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (ReleaseFunc, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}

	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release %s: %w", l.key, err)
		}

		return nil
	}

	return release, true, nil
}
