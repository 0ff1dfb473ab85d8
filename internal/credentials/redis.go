package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists the token pair in Redis under a single key, so a refresh
// replaces both tokens in one write.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and returns a store keyed at key.
func NewRedisStore(addr string, db int, password, key string, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, key: key, logger: logger}, nil
}

// newRedisStoreWithClient is used by tests to inject a miniredis-backed client.
func newRedisStoreWithClient(rdb *redis.Client, key string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, key: key, logger: logger}
}

func (s *RedisStore) load(ctx context.Context) (Pair, error) {
	val, err := s.rdb.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("redis get [%s]: %w", s.key, err)
	}

	var pair Pair
	if err := json.Unmarshal([]byte(val), &pair); err != nil {
		s.logger.Warn("credentials.decode_failed", zap.String("key", s.key), zap.Error(err))
		return Pair{}, fmt.Errorf("decode credentials: %w", err)
	}
	return pair, nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	pair, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return pair.Access, nil
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	pair, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	return pair.Refresh, nil
}

func (s *RedisStore) SetPair(ctx context.Context, pair Pair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set [%s]: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del [%s]: %w", s.key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
