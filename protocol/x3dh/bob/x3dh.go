package bob

import (
	"context"
	"errors"
	"fmt"

	"lite-signal/common"
	"lite-signal/crypto/dh25519"
	"lite-signal/keystore"

	"github.com/sirupsen/logrus"
)

// https://signal.org/docs/specifications/x3dh/
// Terminology:
// - Alice: initiator
// - Bob: responder

// PerformKeyAgreement mirrors alice.PerformKeyAgreement and produces the same
// bytes. A referenced one-time prekey is deleted after use; failing to
// delete it is logged and otherwise ignored.
func PerformKeyAgreement(ctx context.Context, bob *BobPrekeyBundle, alice *ReceivedAliceKeyBundle, otps OneTimePrekeyStore, logger logrus.FieldLogger) ([]byte, error) {
	if bob == nil || len(bob.IdentityKey) == 0 || len(bob.Prekey) == 0 {
		return nil, common.ErrKeysUnavailable
	}

	// DH1 = DH(SPKb, IKa)
	dh1, err := dh25519.GetSharedSecret(bob.Prekey, alice.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}
	// DH2 = DH(IKb, EKa)
	dh2, err := dh25519.GetSharedSecret(bob.IdentityKey, alice.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}
	// DH3 = DH(SPKb, EKa)
	dh3, err := dh25519.GetSharedSecret(bob.Prekey, alice.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	sk := make([]byte, 0, 4*len(dh1))
	sk = append(sk, dh1...)
	sk = append(sk, dh2...)
	sk = append(sk, dh3...)

	if alice.OneTimePrekeyID == nil {
		return sk, nil
	}

	id := *alice.OneTimePrekeyID
	log := logger.WithField("one_time_prekey_id", id)
	otpk, err := otps.OneTimePrekey(ctx, id)
	if errors.Is(err, keystore.ErrNotFound) {
		log.Warn("One-time prekey not available, continuing without DH4")
		return sk, nil
	}
	if err != nil {
		return nil, err
	}

	// DH4 = DH(OPKb, EKa)
	dh4, err := dh25519.GetSharedSecret(otpk, alice.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("dh4: %w", err)
	}
	sk = append(sk, dh4...)

	if err := otps.DeleteOneTimePrekey(ctx, id); err != nil {
		log.WithError(err).Error("Failed to delete consumed one-time prekey")
	}
	return sk, nil
}
