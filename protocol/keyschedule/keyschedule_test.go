package keyschedule

import (
	"bytes"
	"testing"

	"lite-signal/crypto/hkdf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rootKey = bytes.Repeat([]byte{0x42}, 32)

func TestSenderMessageKeyDeterministic(t *testing.T) {
	first, err := SenderMessageKey(rootKey, "sid", "alice", 5)
	require.NoError(t, err)
	second, err := SenderMessageKey(append([]byte(nil), rootKey...), "sid", "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)

	dk, err := hkdf.Derive(rootKey, "DirKey_sid_alice", 32)
	require.NoError(t, err)
	manual, err := hkdf.Derive(dk, "MessageKey_sid_5", 32)
	require.NoError(t, err)
	assert.Equal(t, manual, first)
}

func TestMessageKeysAreDistinct(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		senderID  string
		n         uint32
	}{
		{"Other sender", "sid", "bob", 5},
		{"Other number", "sid", "alice", 6},
		{"Other session", "sid2", "alice", 5},
	}

	base, err := SenderMessageKey(rootKey, "sid", "alice", 5)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := SenderMessageKey(rootKey, tt.sessionID, tt.senderID, tt.n)
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}
}

func TestRootKey(t *testing.T) {
	rk, err := RootKey([]byte("combined"))
	require.NoError(t, err)
	manual, err := hkdf.Derive([]byte("combined"), "RootKey", 32)
	require.NoError(t, err)
	assert.Equal(t, manual, rk)
}

func TestLegacyBaseKeysMirror(t *testing.T) {
	iSend, iRecv, err := LegacyBaseKeys(rootKey, true)
	require.NoError(t, err)
	rSend, rRecv, err := LegacyBaseKeys(rootKey, false)
	require.NoError(t, err)

	assert.Equal(t, iSend, rRecv)
	assert.Equal(t, rSend, iRecv)
	assert.NotEqual(t, iSend, iRecv)
}

func TestLegacyMessageKey(t *testing.T) {
	send, _, err := LegacyBaseKeys(rootKey, true)
	require.NoError(t, err)

	out, err := LegacyMessageKey(send, "bob", Outbound, 2)
	require.NoError(t, err)
	manual, err := hkdf.Derive(send, "MessageKey_bob_out_2", 32)
	require.NoError(t, err)
	assert.Equal(t, manual, out)

	other, err := LegacyMessageKey(send, "carol", Outbound, 2)
	require.NoError(t, err)
	assert.NotEqual(t, out, other)
	next, err := LegacyMessageKey(send, "bob", Outbound, 3)
	require.NoError(t, err)
	assert.NotEqual(t, out, next)
}
