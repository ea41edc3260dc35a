package cipher

import (
	"bytes"
	"encoding/json"
	"testing"

	"lite-signal/common"
	"lite-signal/crypto/key_ed25519"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() *common.Header {
	otp := uint32(3)
	return &common.Header{
		SenderID:                "alice",
		MessageNumber:           7,
		SessionID:               "sid",
		SenderIdentityKey:       key_ed25519.PublicKey(bytes.Repeat([]byte{1}, 32)),
		SenderEphemeralKey:      key_ed25519.PublicKey(bytes.Repeat([]byte{2}, 32)),
		ReceiverOneTimePrekeyID: &otp,
		IsPrekeyMessage:         true,
		Version:                 "3",
	}
}

func TestCanonicalAAD(t *testing.T) {
	h := testHeader()
	ik := "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="
	ek := "AgICAgICAgICAgICAgICAgICAgICAgICAgICAgICAgI="
	assert.Equal(t, "v=3|sid=sid|s=alice|n=7|ik="+ik+"|ek="+ek+"|otp=3|p=true", string(CanonicalAAD(h)))

	h.ReceiverOneTimePrekeyID = nil
	h.IsPrekeyMessage = false
	assert.Equal(t, "v=3|sid=sid|s=alice|n=7|ik="+ik+"|ek="+ek+"|otp=|p=false", string(CanonicalAAD(h)))
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{9}, 32)
	h := testHeader()

	sealed, err := Encrypt(key, []byte("hello"), h)
	require.NoError(t, err)

	pt, err := Decrypt(key, sealed.Ciphertext, sealed.Nonce, sealed.AuthTag, CanonicalAAD(h))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)
}

func TestDecryptTamperedHeader(t *testing.T) {
	key := bytes.Repeat([]byte{9}, 32)
	sealed, err := Encrypt(key, []byte("hello"), testHeader())
	require.NoError(t, err)

	other := uint32(4)
	tests := []struct {
		name   string
		tamper func(h *common.Header)
	}{
		{"Version", func(h *common.Header) { h.Version = "2" }},
		{"SessionID", func(h *common.Header) { h.SessionID = "other" }},
		{"SenderID", func(h *common.Header) { h.SenderID = "mallory" }},
		{"MessageNumber", func(h *common.Header) { h.MessageNumber++ }},
		{"IdentityKey", func(h *common.Header) { h.SenderIdentityKey = bytes.Repeat([]byte{3}, 32) }},
		{"EphemeralKey", func(h *common.Header) { h.SenderEphemeralKey = bytes.Repeat([]byte{3}, 32) }},
		{"OneTimePrekeyID", func(h *common.Header) { h.ReceiverOneTimePrekeyID = &other }},
		{"MissingOneTimePrekeyID", func(h *common.Header) { h.ReceiverOneTimePrekeyID = nil }},
		{"PrekeyFlag", func(h *common.Header) { h.IsPrekeyMessage = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHeader()
			tt.tamper(h)
			_, err := Decrypt(key, sealed.Ciphertext, sealed.Nonce, sealed.AuthTag, CanonicalAAD(h))
			assert.ErrorIs(t, err, common.ErrAuthenticationFailure)
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	h := testHeader()
	sealed, err := Encrypt(bytes.Repeat([]byte{9}, 32), []byte("hello"), h)
	require.NoError(t, err)

	_, err = Decrypt(bytes.Repeat([]byte{8}, 32), sealed.Ciphertext, sealed.Nonce, sealed.AuthTag, CanonicalAAD(h))
	assert.ErrorIs(t, err, common.ErrAuthenticationFailure)
}

func TestLegacyAAD(t *testing.T) {
	h := testHeader()
	aad, err := LegacyAAD(h)
	require.NoError(t, err)

	var decoded common.Header
	require.NoError(t, json.Unmarshal(aad, &decoded))
	assert.Equal(t, *h, decoded)

	key := bytes.Repeat([]byte{9}, 32)
	sealed, err := EncryptWithAAD(key, []byte("legacy"), aad)
	require.NoError(t, err)
	_, err = Decrypt(key, sealed.Ciphertext, sealed.Nonce, sealed.AuthTag, CanonicalAAD(h))
	assert.ErrorIs(t, err, common.ErrAuthenticationFailure)
	pt, err := Decrypt(key, sealed.Ciphertext, sealed.Nonce, sealed.AuthTag, aad)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), pt)
}
