package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	pairingKeyPrefix = "gateway:pair:"
	tokenKeyPrefix   = "gateway:token:"
)

// consumeScript atomically checks and deletes a pairing code so it
// redeems exactly once even across multiple hub instances
const consumeScript = `
	local key = KEYS[1]
	local data = redis.call('GET', key)
	if not data then
		return nil
	end
	redis.call('DEL', key)
	return data
`

// redisTokenStore keeps pairing codes and bearer tokens in Redis, which
// makes pairing survive hub restarts and work across replicas.
type redisTokenStore struct {
	rdb *redis.Client
}

// NewRedisTokenStore creates a Redis-backed TokenStore
func NewRedisTokenStore(rdb *redis.Client) TokenStore {
	return &redisTokenStore{rdb: rdb}
}

func (s *redisTokenStore) CreatePairingCode(ctx context.Context, ttl time.Duration) (string, error) {
	code, err := generatePairingCode()
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, pairingKeyPrefix+code, "1", ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store pairing code: %w", err)
	}
	return code, nil
}

func (s *redisTokenStore) ConsumePairingCode(ctx context.Context, code string) (bool, error) {
	result, err := s.rdb.Eval(ctx, consumeScript, []string{pairingKeyPrefix + code}).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume pairing code: %w", err)
	}
	return result != nil, nil
}

func (s *redisTokenStore) SaveToken(ctx context.Context, token string) error {
	if err := s.rdb.Set(ctx, tokenKeyPrefix+token, "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *redisTokenStore) ValidToken(ctx context.Context, token string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return exists > 0, nil
}

func (s *redisTokenStore) RevokeToken(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
