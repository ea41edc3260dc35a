package server

import (
	"context"
	"fmt"
	"os"
	"testing"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/keyring"
	"lite-signal/keystore"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishBundle(t *testing.T, oneTime int) *common.PublishBundle {
	t.Helper()
	bundle, err := keyring.New(keystore.NewMemory()).Generate(context.Background(), 1, oneTime)
	require.NoError(t, err)
	return bundle
}

func testStore(t *testing.T, s Store, userID string) {
	ctx := context.Background()

	_, err := s.TakeBundle(ctx, userID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	bundle := publishBundle(t, 2)
	require.NoError(t, s.PutBundle(ctx, userID, bundle))

	n, err := s.CountOneTimePrekeys(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, want := range bundle.OneTimePrekeys {
		got, err := s.TakeBundle(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, bundle.IdentityKey, got.IdentityKey)
		assert.Equal(t, bundle.SignedPrekey, got.SignedPrekey)
		require.NotNil(t, got.OneTimePrekey)
		assert.Equal(t, want, *got.OneTimePrekey)
	}

	got, err := s.TakeBundle(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got.OneTimePrekey)

	assert.ErrorIs(t, s.AddOneTimePrekeys(ctx, userID+"-unknown", bundle.OneTimePrekeys), ErrUserNotFound)
	require.NoError(t, s.AddOneTimePrekeys(ctx, userID, bundle.OneTimePrekeys[:1]))
	got, err = s.TakeBundle(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got.OneTimePrekey)
	assert.Equal(t, bundle.OneTimePrekeys[0], *got.OneTimePrekey)

	require.NoError(t, s.PutBundle(ctx, userID, bundle))
	require.NoError(t, s.PutBundle(ctx, userID, bundle))
	n, err = s.CountOneTimePrekeys(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Enqueue(ctx, userID, []byte("one")))
	require.NoError(t, s.Enqueue(ctx, userID, []byte("two")))
	msgs, err := s.Drain(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, msgs)

	msgs, err = s.Drain(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(), "bob")
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis unavailable: %v", err)
	}

	userID := t.Name()
	keys := []string{
		fmt.Sprintf(configs.ServerUserPubKey, userID),
		fmt.Sprintf(configs.ServerOneTimePrekeysKey, userID),
		fmt.Sprintf(configs.ServerMessageQueueKey, userID),
	}
	require.NoError(t, client.Del(ctx, keys...).Err())
	defer client.Del(ctx, keys...)

	s := NewRedisStore(client)
	defer s.Close()
	testStore(t, s, userID)
}
