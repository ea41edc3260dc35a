package dh25519

import (
	"errors"

	"lite-signal/crypto/key_ed25519"
)

var (
	ErrInvalid         = errors.New("invalid input")
	ErrLowOrderSecret  = errors.New("shared secret is the identity element")
	ErrInvalidSecretSz = errors.New("invalid shared secret length")
)

// GetSharedSecret returns the encoded point priv*pub.
func GetSharedSecret(priv key_ed25519.PrivateKey, pub key_ed25519.PublicKey) ([]byte, error) {
	if len(priv) == 0 || len(pub) == 0 {
		return nil, ErrInvalid
	}
	privScalar, err := priv.ToScalar()
	if err != nil {
		return nil, err
	}
	pubPoint, err := pub.ToPoint()
	if err != nil {
		return nil, err
	}
	secretPoint := key_ed25519.Suite.Point().Mul(privScalar, pubPoint)
	if secretPoint.Equal(key_ed25519.Suite.Point().Null()) {
		return nil, ErrLowOrderSecret
	}
	secret, err := secretPoint.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(secret) != key_ed25519.Size {
		return nil, ErrInvalidSecretSz
	}
	return secret, nil
}
