package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := make([]byte, KeySize)
	key[0] = 7
	ad := []byte("v=3|sid=abc")

	ciphertext, nonce, tag, err := Seal(key, []byte("hello"), ad)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceSize)
	assert.Len(t, tag, TagSize)
	assert.Len(t, ciphertext, len("hello"))

	plaintext, err := Open(key, ciphertext, nonce, tag, ad)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}

func TestOpenRejectsTampering(t *testing.T) {
	key := make([]byte, KeySize)
	ad := []byte("ad")
	ciphertext, nonce, tag, err := Seal(key, []byte("payload"), ad)
	require.NoError(t, err)

	flip := func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0x01
		return out
	}

	tests := []struct {
		name                       string
		ciphertext, nonce, tag, ad []byte
	}{
		{"Ciphertext", flip(ciphertext), nonce, tag, ad},
		{"Nonce", ciphertext, flip(nonce), tag, ad},
		{"Tag", ciphertext, nonce, flip(tag), ad},
		{"Associated data", ciphertext, nonce, tag, flip(ad)},
		{"Short nonce", ciphertext, nonce[:4], tag, ad},
		{"Short tag", ciphertext, nonce, tag[:8], ad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(key, tt.ciphertext, tt.nonce, tt.tag, tt.ad)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestSealRejectsShortKey(t *testing.T) {
	_, _, _, err := Seal(make([]byte, 16), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}
