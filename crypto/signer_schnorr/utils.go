package signer_schnorr

import (
	"encoding/binary"

	"lite-signal/crypto/key_ed25519"

	"go.dedis.ch/kyber/v4/sign/schnorr"
)

func Sign(privKey key_ed25519.PrivateKey, msg []byte) ([]byte, error) {
	privScalar, err := privKey.ToScalar()
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(key_ed25519.Suite, privScalar, msg)
}

func Verify(pubKey key_ed25519.PublicKey, msg, sig []byte) error {
	pubPoint, err := pubKey.ToPoint()
	if err != nil {
		return err
	}
	return schnorr.Verify(key_ed25519.Suite, pubPoint, msg, sig)
}

// prekeyMessage binds the prekey id to its public key so a signature cannot
// be replayed under a different id.
func prekeyMessage(keyID uint32, prekey key_ed25519.PublicKey) []byte {
	msg := make([]byte, 4, 4+len(prekey))
	binary.BigEndian.PutUint32(msg, keyID)
	return append(msg, prekey...)
}

// SignPrekey signs a signed-prekey public key with the identity key.
func SignPrekey(identity key_ed25519.PrivateKey, keyID uint32, prekey key_ed25519.PublicKey) ([]byte, error) {
	return Sign(identity, prekeyMessage(keyID, prekey))
}

// VerifyPrekey checks a signature produced by SignPrekey.
func VerifyPrekey(identity key_ed25519.PublicKey, keyID uint32, prekey key_ed25519.PublicKey, sig []byte) error {
	return Verify(identity, prekeyMessage(keyID, prekey), sig)
}
