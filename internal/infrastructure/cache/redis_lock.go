package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLockPrefix = "reco:lock:"

var _ shared.Locker = (*RedisLocker)(nil)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-instance keyed lock built on SET NX with an expiry.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	retry     time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a lock manager on an existing Redis client
func NewRedisLocker(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		retry:     25 * time.Millisecond,
		logger:    logger,
	}
}

// Lock acquires the keys in sorted order, retrying until ctx ends
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	token := uuid.NewString()
	ordered := normalizeKeys(keys)
	acquired := make([]string, 0, len(ordered))

	release := func() {
		// Release must not be skipped because the request context ended
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, l.client, []string{acquired[i]}, token).Err(); err != nil {
				l.logger.Warn("Failed to release lock", zap.String("key", acquired[i]), zap.Error(err))
			}
		}
	}

	for _, key := range ordered {
		redisKey := l.keyPrefix + key
		if err := l.acquire(ctx, redisKey, token); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, redisKey)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return shared.NewTransientError("lock store unavailable: %v", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return shared.NewTransientError("lock on %s not acquired: %v", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// String describes the locker for startup logs
func (l *RedisLocker) String() string {
	return fmt.Sprintf("redis(prefix=%s, ttl=%s)", l.keyPrefix, l.ttl)
}
