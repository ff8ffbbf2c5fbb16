package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockTTL = 10 * time.Second

// releaseScript deletes the lock only when the holder's token still owns
// it, so an expired lock re-acquired by another caller is never released
// from under them.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// acquireLock takes a per-record advisory lock. Returns the release token,
// or false when a concurrent operation holds the lock.
func (g *Gateway) acquireLock(ctx context.Context, key string) (string, bool) {
	token := uuid.New().String()
	ok, err := g.redis.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		g.logger.Warn("lock acquire failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return "", false
	}
	return token, ok
}

func (g *Gateway) releaseLock(ctx context.Context, key, token string) {
	if err := releaseScript.Run(ctx, g.redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
		g.logger.Warn("lock release failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
