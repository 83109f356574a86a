// Package lease provides a Redis-backed mutual-exclusion lease for batch jobs.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "dong:lease:"
	connectTimeout  = 5 * time.Second
	defaultLeaseTTL = 30 * time.Minute
)

var (
	// ErrHeld is returned by Acquire when another holder owns the lease.
	ErrHeld = errors.New("lease: held by another holder")
	// ErrNotOwner is returned by a release func when the lease expired or was taken over.
	ErrNotOwner = errors.New("lease: no longer owned")

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisLease is a named lease held with SET NX PX and released by compare-and-delete.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Dial connects to redisURL and returns a lease named name.
func Dial(redisURL, name string, ttl time.Duration) (*RedisLease, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLease(client, name, ttl), nil
}

// NewRedisLease builds a lease from an existing client.
func NewRedisLease(client *redis.Client, name string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{client: client, key: keyPrefix + name, ttl: ttl}
}

// Acquire takes the lease or fails with ErrHeld. The returned func releases it
// only if this holder still owns it.
func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !acquired {
		return nil, ErrHeld
	}
	return func(releaseCtx context.Context) error {
		deleted, err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lease %s: %w", l.key, err)
		}
		if deleted == 0 {
			return ErrNotOwner
		}
		return nil
	}, nil
}

// Close closes the underlying client.
func (l *RedisLease) Close() error {
	return l.client.Close()
}
