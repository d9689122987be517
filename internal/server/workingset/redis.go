package workingset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "acctx:active:"

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore shares working sets between server instances. Each value is
// sealed with the owning user's key, so a Redis dump reveals nothing about
// cookies or cache contents.
type RedisStore struct {
	client redisClient
	keys   *cryptox.KeyService
	codec  *cryptox.Codec
	ttl    time.Duration
}

// NewRedisStore builds a store whose values expire after ttl of inactivity.
// A zero ttl keeps them until cleared.
func NewRedisStore(client redisClient, keys *cryptox.KeyService, codec *cryptox.Codec, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, keys: keys, codec: codec, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*ActiveContext, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	key, err := s.keys.DeriveKey(cryptox.Scope{UserID: userID})
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ac := &ActiveContext{}
	if err := s.codec.DecryptJSON(raw, key, ac); err != nil {
		return nil, err
	}
	if ac.UserID != userID {
		return nil, common.ErrIsolationViolation
	}
	return ac, nil
}

func (s *RedisStore) Set(ctx context.Context, ac *ActiveContext) error {
	key, err := s.keys.DeriveKey(cryptox.Scope{UserID: ac.UserID})
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	sealed, err := s.codec.EncryptJSON(ac, key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+ac.UserID, sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
