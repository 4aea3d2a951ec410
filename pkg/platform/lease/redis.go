package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"parity/pkg/platform/sentinel"
)

const leaseKeyPrefix = "lease:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lease never releases a successor's ownership.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Lease shared by every instance pointing at the same Redis.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis constructs a Redis-backed lease. logger may be nil.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	redisKey := leaseKeyPrefix + key
	ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return nil, sentinel.ErrLeaseHeld
	}
	return func() {
		// The request context may already be cancelled when release runs.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "failed to release lease; it will expire",
				"key", key,
				"error", err,
			)
		}
	}, nil
}
