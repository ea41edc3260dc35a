package alice

import (
	"fmt"

	"lite-signal/common"
	"lite-signal/crypto/dh25519"
)

// https://signal.org/docs/specifications/x3dh/
// Terminology:
// - Alice: initiator
// - Bob: responder

// PerformKeyAgreement returns DH1 || DH2 || DH3 [|| DH4]. DH4 is present
// only when bob offered a one-time prekey.
func PerformKeyAgreement(alice *AliceKeyBundle, bob *BobPrekeyBundle) ([]byte, error) {
	if alice == nil || len(alice.IdentityKey) == 0 {
		return nil, common.ErrKeysUnavailable
	}
	if len(alice.EphemeralKey) == 0 {
		return nil, fmt.Errorf("missing ephemeral key")
	}

	// DH1 = DH(IKa, SPKb)
	dh1, err := dh25519.GetSharedSecret(alice.IdentityKey, bob.Prekey)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}
	// DH2 = DH(EKa, IKb)
	dh2, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}
	// DH3 = DH(EKa, SPKb)
	dh3, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.Prekey)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	sk := make([]byte, 0, 4*len(dh1))
	sk = append(sk, dh1...)
	sk = append(sk, dh2...)
	sk = append(sk, dh3...)

	if len(bob.OneTimePrekey) > 0 {
		// DH4 = DH(EKa, OPKb)
		dh4, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.OneTimePrekey)
		if err != nil {
			return nil, fmt.Errorf("dh4: %w", err)
		}
		sk = append(sk, dh4...)
	}
	return sk, nil
}
