package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRefreshLockTTL = 5 * time.Minute
	releaseTimeout        = 5 * time.Second
)

// ErrLockHeld signals that another instance currently owns the lock; the
// caller should skip its turn rather than wait.
var ErrLockHeld = errors.New("support: refresh lock held elsewhere")

var (
	lockCounter atomic.Uint64

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// WithRefreshLock runs task while holding a Redis SETNX lock, so a refresh
// of one resource never runs twice concurrently across instances. When no
// Redis client is available the task runs unguarded: single-instance
// deployments already serialize refreshes in-process via singleflight.
// Returns ErrLockHeld when another holder is active.
func WithRefreshLock(ctx context.Context, key string, ttl time.Duration, task func(context.Context) error) error {
	if task == nil {
		return errors.New("support: refresh lock task cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}

	if !RedisConfigured() {
		return task(ctx)
	}

	client, err := GetRedisClient()
	if err != nil {
		log.Warn("refresh lock: redis unavailable, running unguarded", "key", key, "error", err)
		return task(ctx)
	}

	holder := lockHolderID()
	ok, err := client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("refresh lock: setnx failed, running unguarded", "key", key, "error", err)
		return task(ctx)
	}
	if !ok {
		return ErrLockHeld
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, err := releaseScript.Run(releaseCtx, client, []string{key}, holder).Result(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("refresh lock: release failed", "key", key, "error", err)
		}
	}()

	return task(ctx)
}

func lockHolderID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), lockCounter.Add(1))
}
