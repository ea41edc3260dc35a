package alice

import (
	"lite-signal/common"
	"lite-signal/crypto/key_ed25519"
	"lite-signal/crypto/signer_schnorr"
)

// BobPrekeyBundle holds the responder's public keys as fetched from the
// directory.
type BobPrekeyBundle struct {
	IdentityKey   key_ed25519.PublicKey
	Prekey        key_ed25519.PublicKey
	PrekeyID      uint32
	PrekeySig     []byte
	OneTimePrekey key_ed25519.PublicKey // optional
	OneTimeID     *uint32
}

type AliceKeyBundle struct {
	IdentityKey  key_ed25519.PrivateKey
	EphemeralKey key_ed25519.PrivateKey
}

func FromPrekeyBundle(b *common.PrekeyBundle) *BobPrekeyBundle {
	bob := &BobPrekeyBundle{
		IdentityKey: b.IdentityKey,
		Prekey:      b.SignedPrekey.PublicKey,
		PrekeyID:    b.SignedPrekey.KeyID,
		PrekeySig:   b.SignedPrekey.Signature,
	}
	if b.OneTimePrekey != nil {
		id := b.OneTimePrekey.KeyID
		bob.OneTimePrekey = b.OneTimePrekey.PublicKey
		bob.OneTimeID = &id
	}
	return bob
}

// Verify checks the signed prekey signature against the identity key.
func (bob *BobPrekeyBundle) Verify() error {
	return signer_schnorr.VerifyPrekey(bob.IdentityKey, bob.PrekeyID, bob.Prekey, bob.PrekeySig)
}

// VerifyBundle is the signature hook run before a session is started. When
// strict is false every bundle is accepted without looking at the signature.
// TODO: make strict the default once every published bundle is signed with
// signer_schnorr.SignPrekey.
func VerifyBundle(bob *BobPrekeyBundle, strict bool) error {
	if !strict {
		return nil
	}
	return bob.Verify()
}
