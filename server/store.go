package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"lite-signal/common"
	"lite-signal/configs"

	"github.com/redis/go-redis/v9"
)

var ErrUserNotFound = errors.New("user not found")

// Store keeps published bundles, the one-time prekey pool and queued
// messages for offline users.
type Store interface {
	// PutBundle replaces the identity, signed prekey and one-time prekey pool.
	PutBundle(ctx context.Context, userID string, bundle *common.PublishBundle) error
	// AddOneTimePrekeys appends to the pool of a published user.
	AddOneTimePrekeys(ctx context.Context, userID string, prekeys []common.OneTimePrekey) error
	// TakeBundle returns the bundle with at most one one-time prekey, which
	// is removed from the pool.
	TakeBundle(ctx context.Context, userID string) (*common.PrekeyBundle, error)
	CountOneTimePrekeys(ctx context.Context, userID string) (int64, error)
	Enqueue(ctx context.Context, userID string, msg []byte) error
	// Drain returns and clears every message queued for userID.
	Drain(ctx context.Context, userID string) ([][]byte, error)
	Close() error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutBundle(ctx context.Context, userID string, bundle *common.PublishBundle) error {
	base, err := json.Marshal(bundle.Bundle(nil))
	if err != nil {
		return err
	}
	otps, err := marshalPrekeys(bundle.OneTimePrekeys)
	if err != nil {
		return err
	}

	pool := fmt.Sprintf(configs.ServerOneTimePrekeysKey, userID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(configs.ServerUserPubKey, userID), base, 0)
	pipe.Del(ctx, pool)
	if len(otps) > 0 {
		pipe.RPush(ctx, pool, otps...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AddOneTimePrekeys(ctx context.Context, userID string, prekeys []common.OneTimePrekey) error {
	n, err := s.client.Exists(ctx, fmt.Sprintf(configs.ServerUserPubKey, userID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	otps, err := marshalPrekeys(prekeys)
	if err != nil || len(otps) == 0 {
		return err
	}
	return s.client.RPush(ctx, fmt.Sprintf(configs.ServerOneTimePrekeysKey, userID), otps...).Err()
}

func marshalPrekeys(prekeys []common.OneTimePrekey) ([]any, error) {
	out := make([]any, 0, len(prekeys))
	for _, otp := range prekeys {
		data, err := json.Marshal(otp)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *RedisStore) TakeBundle(ctx context.Context, userID string) (*common.PrekeyBundle, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(configs.ServerUserPubKey, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var bundle common.PrekeyBundle
	if err := json.Unmarshal([]byte(data), &bundle); err != nil {
		return nil, err
	}

	raw, err := s.client.LPop(ctx, fmt.Sprintf(configs.ServerOneTimePrekeysKey, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return &bundle, nil
	}
	if err != nil {
		return nil, err
	}
	var otp common.OneTimePrekey
	if err := json.Unmarshal([]byte(raw), &otp); err != nil {
		return nil, err
	}
	bundle.OneTimePrekey = &otp
	return &bundle, nil
}

func (s *RedisStore) CountOneTimePrekeys(ctx context.Context, userID string) (int64, error) {
	return s.client.LLen(ctx, fmt.Sprintf(configs.ServerOneTimePrekeysKey, userID)).Result()
}

func (s *RedisStore) Enqueue(ctx context.Context, userID string, msg []byte) error {
	return s.client.RPush(ctx, fmt.Sprintf(configs.ServerMessageQueueKey, userID), msg).Err()
}

func (s *RedisStore) Drain(ctx context.Context, userID string) ([][]byte, error) {
	key := fmt.Sprintf(configs.ServerMessageQueueKey, userID)
	pipe := s.client.TxPipeline()
	lrange := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(lrange.Val()))
	for _, m := range lrange.Val() {
		out = append(out, []byte(m))
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is a Store for tests and single-process setups.
type MemoryStore struct {
	mu      sync.Mutex
	bundles map[string]common.PrekeyBundle
	prekeys map[string][]common.OneTimePrekey
	queues  map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles: make(map[string]common.PrekeyBundle),
		prekeys: make(map[string][]common.OneTimePrekey),
		queues:  make(map[string][][]byte),
	}
}

func (s *MemoryStore) PutBundle(_ context.Context, userID string, bundle *common.PublishBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[userID] = *bundle.Bundle(nil)
	s.prekeys[userID] = append([]common.OneTimePrekey(nil), bundle.OneTimePrekeys...)
	return nil
}

func (s *MemoryStore) AddOneTimePrekeys(_ context.Context, userID string, prekeys []common.OneTimePrekey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[userID]; !ok {
		return ErrUserNotFound
	}
	s.prekeys[userID] = append(s.prekeys[userID], prekeys...)
	return nil
}

func (s *MemoryStore) TakeBundle(_ context.Context, userID string) (*common.PrekeyBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bundle, ok := s.bundles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if pool := s.prekeys[userID]; len(pool) > 0 {
		otp := pool[0]
		bundle.OneTimePrekey = &otp
		s.prekeys[userID] = pool[1:]
	}
	return &bundle, nil
}

func (s *MemoryStore) CountOneTimePrekeys(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.prekeys[userID])), nil
}

func (s *MemoryStore) Enqueue(_ context.Context, userID string, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[userID] = append(s.queues[userID], msg)
	return nil
}

func (s *MemoryStore) Drain(_ context.Context, userID string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queues[userID]
	delete(s.queues, userID)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
