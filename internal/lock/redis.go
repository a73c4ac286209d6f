package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript deletes the lease only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is the Locker for multi-replica deployments: a SET NX PX
// lease per system, polled until acquired or the context ends. The TTL
// bounds how long a crashed holder can block allocation.
type RedisLocker struct {
	client    *redis.Client
	ttl       time.Duration
	pollEvery time.Duration
	logger    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:    client,
		ttl:       ttl,
		pollEvery: 50 * time.Millisecond,
		logger:    logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := "certlock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Best effort: the TTL reclaims the lease if this fails.
				if _, err := releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Result(); err != nil {
					l.logger.Warn("Failed to release allocation lock",
						zap.String("key", redisKey),
						zap.Error(err),
					)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollEvery):
		}
	}
}
