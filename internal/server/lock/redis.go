package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const lockPrefix = "acctx:lock:"

// unlockScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// refreshScript pushes the expiry out while the key still holds our token.
const refreshScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a Locker shared by every server instance using the same Redis.
// Locks expire after ttl so a crashed holder cannot wedge a user forever.
// A live holder refreshes its lock every ttl/3 until it unlocks.
type Redis struct {
	client redisClient
	ttl    time.Duration
	poll   time.Duration
	log    logging.Logger
}

func NewRedis(client redisClient, ttl, poll time.Duration, log logging.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Redis{client: client, ttl: ttl, poll: poll, log: log.With("module", "lock")}
}

// keepAlive refreshes key until stop is closed.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := r.client.Eval(ctx, refreshScript, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.log.Warn(ctx, "lock refresh failed", "key", key, "error", err)
				continue
			}
			if n == 0 {
				r.log.Error(ctx, "lock lost before release", "key", key)
				return
			}
		}
	}
}

func (r *Redis) acquire(ctx context.Context, name string) (Unlock, bool, error) {
	token, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, false, err
	}
	key := lockPrefix + name

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	go r.keepAlive(key, token, stop)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			// the caller's context may be gone by now
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.client.Eval(ctx, unlockScript, []string{key}, token).Err(); err != nil {
				r.log.Error(ctx, "lock release failed, it expires on its own", "key", key, "error", err)
			}
		})
	}
	return unlock, true, nil
}

func (r *Redis) TryLock(ctx context.Context, name string) (Unlock, error) {
	unlock, ok, err := r.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorConflict
	}
	return unlock, nil
}

func (r *Redis) Lock(ctx context.Context, name string) (Unlock, error) {
	var unlock Unlock
	err := retry.Do(ctx, retry.NewConstant(r.poll), func(ctx context.Context) error {
		u, ok, err := r.acquire(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(common.ErrorConflict)
		}
		unlock = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlock, nil
}
