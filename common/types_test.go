package common

import (
	"encoding/json"
	"testing"

	"lite-signal/crypto/key_ed25519"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBundle(t *testing.T) *PrekeyBundle {
	identity, err := key_ed25519.NewPair()
	require.NoError(t, err)
	spk, err := key_ed25519.NewPair()
	require.NoError(t, err)
	otp, err := key_ed25519.NewPair()
	require.NoError(t, err)
	return &PrekeyBundle{
		IdentityKey:   identity.Pub,
		SignedPrekey:  SignedPrekey{KeyID: 1, PublicKey: spk.Pub, Signature: []byte("sig")},
		OneTimePrekey: &OneTimePrekey{KeyID: 3, PublicKey: otp.Pub},
	}
}

func TestPrekeyBundleValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *PrekeyBundle)
		valid  bool
	}{
		{"Complete bundle", func(b *PrekeyBundle) {}, true},
		{"Without one-time prekey", func(b *PrekeyBundle) { b.OneTimePrekey = nil }, true},
		{"Short identity key", func(b *PrekeyBundle) { b.IdentityKey = b.IdentityKey[:16] }, false},
		{"Missing signed prekey", func(b *PrekeyBundle) { b.SignedPrekey.PublicKey = nil }, false},
		{"Missing signature", func(b *PrekeyBundle) { b.SignedPrekey.Signature = nil }, false},
		{"Bad one-time prekey", func(b *PrekeyBundle) { b.OneTimePrekey.PublicKey = []byte{1} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBundle(t)
			tt.mutate(b)
			err := b.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedBundle)
			}
		})
	}

	var nilBundle *PrekeyBundle
	assert.ErrorIs(t, nilBundle.Validate(), ErrMalformedBundle)
}

func TestEncryptedMessageWireFormat(t *testing.T) {
	otp := uint32(3)
	msg := EncryptedMessage{
		Ciphertext: []byte{1, 2},
		Nonce:      []byte{3},
		AuthTag:    []byte{4},
		Header: Header{
			SenderID:                "alice",
			MessageNumber:           0,
			SessionID:               "sid",
			SenderIdentityKey:       key_ed25519.PublicKey{5},
			SenderEphemeralKey:      key_ed25519.PublicKey{6},
			ReceiverOneTimePrekeyID: &otp,
			IsPrekeyMessage:         true,
			Version:                 "3",
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "AQI=", generic["ciphertext"])
	header := generic["header"].(map[string]any)
	assert.Equal(t, "alice", header["senderId"])
	assert.Equal(t, float64(3), header["receiverOneTimePrekeyId"])
	assert.Equal(t, "BQ==", header["senderIdentityKey"])

	msg.Header.ReceiverOneTimePrekeyID = nil
	raw, err = json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"receiverOneTimePrekeyId":null`)
}
