// Package lock provides a Redis-backed slot locker for multi-process
// deployments. Single-process deployments use the in-process keyed locker
// from pkg/memory instead.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "temporalmem:slot:"
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// releaseScript deletes the lock key only when the caller still holds it,
// so an expired lock re-acquired by another writer is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config configures the Redis slot locker.
type Config struct {
	// KeyPrefix namespaces lock keys in a shared Redis.
	KeyPrefix string

	// TTL bounds how long a held lock survives a crashed owner.
	TTL time.Duration

	// RetryDelay is the poll interval while the lock is held elsewhere.
	RetryDelay time.Duration
}

// RedisSlotLocker serializes same-slot writes across processes with
// SET NX and a fencing token.
type RedisSlotLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisSlotLocker creates a Redis-backed slot locker.
func NewRedisSlotLocker(client redis.UniversalClient, cfg Config) *RedisSlotLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &RedisSlotLocker{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		retry:  cfg.RetryDelay,
	}
}

// Acquire blocks until the (userID, slot) lock is held or ctx is done.
// An empty slot is a no-op, matching the in-process locker.
func (l *RedisSlotLocker) Acquire(ctx context.Context, userID, slot string) (func(), error) {
	if slot == "" {
		return func() {}, nil
	}

	key := l.prefix + userID + ":" + slot
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("lock: generate token: %w", err)
	}

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			release := func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
					defer cancel()
					_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
				})
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
