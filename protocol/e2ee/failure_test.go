package e2ee

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/keystore"
	"lite-signal/protocol/cipher"
	"lite-signal/protocol/keyschedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// faultyKeystore wraps a keystore and fails the operations switched on.
type faultyKeystore struct {
	keystore.Keystore
	failSet       bool
	failDelete    bool
	failGetPrefix string
}

func newFaultyKeystore() *faultyKeystore {
	return &faultyKeystore{Keystore: keystore.NewMemory()}
}

func (f *faultyKeystore) Get(ctx context.Context, key string) (string, error) {
	if f.failGetPrefix != "" && strings.HasPrefix(key, f.failGetPrefix) {
		return "", errDiskFull
	}
	return f.Keystore.Get(ctx, key)
}

func (f *faultyKeystore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errDiskFull
	}
	return f.Keystore.Set(ctx, key, value)
}

func (f *faultyKeystore) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errDiskFull
	}
	return f.Keystore.Delete(ctx, key)
}

func TestStorageFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("encrypt keeps counter", func(t *testing.T) {
		aliceKS := newFaultyKeystore()
		alice, _ := connectedWith(t, aliceKS, keystore.NewMemory())

		aliceKS.failSet = true
		_, err := alice.protocol.EncryptMessage(ctx, "bob", []byte("lost"))
		assert.ErrorIs(t, err, common.ErrStorageFailure)
		assert.ErrorIs(t, err, errDiskFull)
		assert.Equal(t, uint32(1), alice.session(t, "bob").SendMessageNumber)

		_, err = alice.protocol.EncryptLegacyMessage(ctx, "bob", []byte("lost"), LegacyCanonicalAAD)
		assert.ErrorIs(t, err, common.ErrStorageFailure)
		assert.Equal(t, uint32(1), alice.session(t, "bob").SendMessageNumber)
	})

	t.Run("decrypt keeps counter", func(t *testing.T) {
		bobKS := newFaultyKeystore()
		alice, bob := connectedWith(t, keystore.NewMemory(), bobKS)

		msg, err := alice.protocol.EncryptMessage(ctx, "bob", []byte("second"))
		require.NoError(t, err)

		bobKS.failSet = true
		_, err = bob.protocol.DecryptMessage(ctx, "alice", msg)
		assert.ErrorIs(t, err, common.ErrStorageFailure)
		assert.Equal(t, uint32(1), bob.session(t, "alice").ReceiveMessageNumber)

		bobKS.failSet = false
		plaintext, err := bob.protocol.DecryptMessage(ctx, "alice", msg)
		require.NoError(t, err)
		assert.Equal(t, "second", string(plaintext))
		assert.Equal(t, uint32(2), bob.session(t, "alice").ReceiveMessageNumber)
	})

	t.Run("remove keeps session", func(t *testing.T) {
		aliceKS := newFaultyKeystore()
		alice, _ := connectedWith(t, aliceKS, keystore.NewMemory())

		aliceKS.failDelete = true
		err := alice.protocol.RemoveSession(ctx, "bob")
		assert.ErrorIs(t, err, common.ErrStorageFailure)
		assert.True(t, alice.protocol.HasSession("bob"))
	})

	t.Run("rebuild reports keystore error", func(t *testing.T) {
		bobKS := newFaultyKeystore()
		alice, bob := connectedWith(t, keystore.NewMemory(), bobKS)
		old := bob.session(t, "alice")

		require.NoError(t, alice.protocol.StartSession(ctx, "bob", bob.offer(4)))
		msg, err := alice.protocol.EncryptMessage(ctx, "bob", []byte("fresh start"))
		require.NoError(t, err)

		bobKS.failGetPrefix = configs.OneTimePrekeyPrefix
		_, err = bob.protocol.DecryptMessage(ctx, "alice", msg)
		assert.ErrorIs(t, err, common.ErrStorageFailure)
		assert.NotErrorIs(t, err, common.ErrAuthenticationFailure)
		assert.Equal(t, old.RootKey, bob.session(t, "alice").RootKey)

		bobKS.failGetPrefix = ""
		plaintext, err := bob.protocol.DecryptMessage(ctx, "alice", msg)
		require.NoError(t, err)
		assert.Equal(t, "fresh start", string(plaintext))
	})
}

func TestSendCounterExhausted(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		encrypt func(p *Protocol) (*common.EncryptedMessage, error)
	}{
		{
			name: "current",
			encrypt: func(p *Protocol) (*common.EncryptedMessage, error) {
				return p.EncryptMessage(ctx, "bob", []byte("payload"))
			},
		},
		{
			name: "legacy",
			encrypt: func(p *Protocol) (*common.EncryptedMessage, error) {
				return p.EncryptLegacyMessage(ctx, "bob", []byte("payload"), LegacyJSONAAD)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alice, bob := connected(t)
			s := alice.session(t, "bob")
			s.SendMessageNumber = math.MaxUint32 - 1
			require.NoError(t, alice.protocol.Sessions().Save(ctx, s))

			last, err := tt.encrypt(alice.protocol)
			require.NoError(t, err)
			assert.Equal(t, uint32(math.MaxUint32-1), last.Header.MessageNumber)
			_, err = bob.protocol.DecryptMessage(ctx, "alice", last)
			require.NoError(t, err)

			_, err = tt.encrypt(alice.protocol)
			assert.ErrorIs(t, err, common.ErrCounterExhausted)
			assert.Equal(t, uint32(math.MaxUint32), alice.session(t, "bob").SendMessageNumber)
		})
	}
}

func TestReceiveCounterSaturates(t *testing.T) {
	ctx := context.Background()
	alice, bob := connected(t)

	s := alice.session(t, "bob")
	s.SendMessageNumber = math.MaxUint32
	key, err := keyschedule.SenderMessageKey(s.RootKey, s.SessionID, "alice", s.SendMessageNumber)
	require.NoError(t, err)
	header := alice.protocol.header(s, configs.ProtocolVersion)
	sealed, err := cipher.Encrypt(key, []byte("edge"), &header)
	require.NoError(t, err)
	edge := &common.EncryptedMessage{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		AuthTag:    sealed.AuthTag,
		Header:     header,
	}

	plaintext, err := bob.protocol.DecryptMessage(ctx, "alice", edge)
	require.NoError(t, err)
	assert.Equal(t, "edge", string(plaintext))
	assert.Equal(t, uint32(math.MaxUint32), bob.session(t, "alice").ReceiveMessageNumber)

	late, err := alice.protocol.EncryptMessage(ctx, "bob", []byte("late"))
	require.NoError(t, err)
	_, err = bob.protocol.DecryptMessage(ctx, "alice", late)
	require.NoError(t, err)
	_, err = bob.protocol.DecryptMessage(ctx, "alice", edge)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), bob.session(t, "alice").ReceiveMessageNumber)
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name    string
		current uint32
		n       uint32
		want    uint32
	}{
		{name: "first", current: 0, n: 0, want: 1},
		{name: "gap", current: 1, n: 5, want: 6},
		{name: "late", current: 6, n: 2, want: 6},
		{name: "last number", current: 6, n: math.MaxUint32 - 1, want: math.MaxUint32},
		{name: "saturates", current: 6, n: math.MaxUint32, want: math.MaxUint32},
		{name: "saturated", current: math.MaxUint32, n: 3, want: math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, advance(tt.current, tt.n))
		})
	}
}
