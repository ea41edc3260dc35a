package keystore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"lite-signal/configs"

	"github.com/redis/go-redis/v9"
)

// Redis keeps one user's keystore in a single redis hash.
type Redis struct {
	client *redis.Client
	hash   string
}

func NewRedis(client *redis.Client, userID string) *Redis {
	return &Redis{
		client: client,
		hash:   fmt.Sprintf(configs.ClientKeystoreKey, userID),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.HSet(ctx, r.hash, key, value).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.hash, key).Err()
}

func (r *Redis) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
