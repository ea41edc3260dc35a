package bob

import (
	"context"

	"lite-signal/crypto/key_ed25519"
)

type BobPrekeyBundle struct {
	IdentityKey key_ed25519.PrivateKey
	Prekey      key_ed25519.PrivateKey
}

// ReceivedAliceKeyBundle is what the responder learns from the first
// message header.
type ReceivedAliceKeyBundle struct {
	IdentityKey     key_ed25519.PublicKey
	EphemeralKey    key_ed25519.PublicKey
	OneTimePrekeyID *uint32
}

// OneTimePrekeyStore gives single-use access to local one-time prekeys.
// OneTimePrekey returns keystore.ErrNotFound for consumed or unknown ids.
type OneTimePrekeyStore interface {
	OneTimePrekey(ctx context.Context, id uint32) (key_ed25519.PrivateKey, error)
	DeleteOneTimePrekey(ctx context.Context, id uint32) error
}
