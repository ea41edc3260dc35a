package hkdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualHKDF spells out extract-then-expand with a 32-byte zero salt.
func manualHKDF(secret []byte, info string, length int) []byte {
	extract := hmac.New(sha256.New, make([]byte, 32))
	extract.Write(secret)
	prk := extract.Sum(nil)

	var out, block []byte
	for i := byte(1); len(out) < length; i++ {
		expand := hmac.New(sha256.New, prk)
		expand.Write(block)
		expand.Write([]byte(info))
		expand.Write([]byte{i})
		block = expand.Sum(nil)
		out = append(out, block...)
	}
	return out[:length]
}

func TestDeriveMatchesExtractExpand(t *testing.T) {
	tests := []struct {
		name   string
		secret []byte
		info   string
		length int
	}{
		{"Single block", []byte("secret"), "RootKey", 32},
		{"Partial block", []byte("secret"), "DirKey_sid_alice", 20},
		{"Multiple blocks", make([]byte, 96), "MessageKey_sid_7", 80},
		{"Empty info", []byte{1, 2, 3}, "", 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.secret, tt.info, tt.length)
			require.NoError(t, err)
			assert.Equal(t, manualHKDF(tt.secret, tt.info, tt.length), got)
		})
	}
}

func TestDeriveSeparatesByInfo(t *testing.T) {
	a, err := New32BytesKeyFromSecret([]byte("secret"), "a")
	require.NoError(t, err)
	b, err := New32BytesKeyFromSecret([]byte("secret"), "b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveRejectsBadLength(t *testing.T) {
	_, err := Derive([]byte("secret"), "x", 0)
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = Derive([]byte("secret"), "x", 255*32+1)
	assert.ErrorIs(t, err, ErrInvalidLength)
}
