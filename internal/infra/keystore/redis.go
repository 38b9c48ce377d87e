package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisPrefix 是 redis key 的默认命名空间。
const DefaultRedisPrefix = "walletctl:"

// RedisStore 以 prefix+slot 为 key 保存 slot。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// OpenRedis 解析 redis:// URL 并确认连接可用。
func OpenRedis(uri, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("keystore: ping redis: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore 基于已有 client 构造 store。
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close 关闭底层连接。
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context, slot string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+slot).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keystore: redis get: %w", err)
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, slot, value string) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+slot, value, 0).Err(); err != nil {
		return fmt.Errorf("keystore: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, slot string) error {
	if err := r.client.Del(ctx, r.prefix+slot).Err(); err != nil {
		return fmt.Errorf("keystore: redis del: %w", err)
	}
	return nil
}
