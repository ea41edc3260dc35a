package common

import (
	"fmt"

	"lite-signal/crypto/key_ed25519"
)

// Header is sent in clear next to the ciphertext and covered by its tag.
type Header struct {
	SenderID                string                `json:"senderId"`
	MessageNumber           uint32                `json:"messageNumber"`
	SessionID               string                `json:"sessionId"`
	SenderIdentityKey       key_ed25519.PublicKey `json:"senderIdentityKey"`
	SenderEphemeralKey      key_ed25519.PublicKey `json:"senderEphemeralKey"`
	ReceiverOneTimePrekeyID *uint32               `json:"receiverOneTimePrekeyId"`
	IsPrekeyMessage         bool                  `json:"isPrekeyMessage"`
	Version                 string                `json:"version"`
}

// EncryptedMessage is the wire envelope exchanged through the relay.
type EncryptedMessage struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	AuthTag    []byte `json:"authTag"`
	Header     Header `json:"header"`
}

// MessageBundle wraps an EncryptedMessage with relay routing fields.
type MessageBundle struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Message EncryptedMessage `json:"message"`
}

type SignedPrekey struct {
	KeyID     uint32                `json:"keyId"`
	PublicKey key_ed25519.PublicKey `json:"pubkey"`
	Signature []byte                `json:"signature"`
}

type OneTimePrekey struct {
	KeyID     uint32                `json:"keyId"`
	PublicKey key_ed25519.PublicKey `json:"pubkey"`
}

// PrekeyBundle is what the directory hands out for a peer. A returned
// one-time prekey has already been removed from the directory's pool.
type PrekeyBundle struct {
	IdentityKey   key_ed25519.PublicKey `json:"identityPubkey"`
	SignedPrekey  SignedPrekey          `json:"signedPrekey"`
	OneTimePrekey *OneTimePrekey        `json:"oneTimePrekey"`
}

// PublishBundle is what a client uploads to the directory.
type PublishBundle struct {
	IdentityKey    key_ed25519.PublicKey `json:"identityPubkey"`
	SignedPrekey   SignedPrekey          `json:"signedPrekey"`
	OneTimePrekeys []OneTimePrekey       `json:"oneTimePrekeys"`
}

func (m *EncryptedMessage) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	if m.Header.SenderID == "" {
		return fmt.Errorf("%w: missing sender id", ErrMalformedMessage)
	}
	if m.Header.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrMalformedMessage)
	}
	return nil
}

// Validate performs shape checks only; signatures are checked elsewhere.
func (b *PrekeyBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrMalformedBundle)
	}
	if err := b.IdentityKey.Validate(); err != nil {
		return fmt.Errorf("%w: identity key: %v", ErrMalformedBundle, err)
	}
	if err := b.SignedPrekey.PublicKey.Validate(); err != nil {
		return fmt.Errorf("%w: signed prekey: %v", ErrMalformedBundle, err)
	}
	if len(b.SignedPrekey.Signature) == 0 {
		return fmt.Errorf("%w: missing signed prekey signature", ErrMalformedBundle)
	}
	if b.OneTimePrekey != nil {
		if err := b.OneTimePrekey.PublicKey.Validate(); err != nil {
			return fmt.Errorf("%w: one-time prekey %d: %v", ErrMalformedBundle, b.OneTimePrekey.KeyID, err)
		}
	}
	return nil
}

func (b *PublishBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrMalformedBundle)
	}
	base := PrekeyBundle{IdentityKey: b.IdentityKey, SignedPrekey: b.SignedPrekey}
	if err := base.Validate(); err != nil {
		return err
	}
	for i := range b.OneTimePrekeys {
		if err := b.OneTimePrekeys[i].PublicKey.Validate(); err != nil {
			return fmt.Errorf("%w: one-time prekey %d: %v", ErrMalformedBundle, b.OneTimePrekeys[i].KeyID, err)
		}
	}
	return nil
}

// Bundle returns the single-recipient view of b, using otp as the offered
// one-time prekey.
func (b *PublishBundle) Bundle(otp *OneTimePrekey) *PrekeyBundle {
	return &PrekeyBundle{
		IdentityKey:   b.IdentityKey,
		SignedPrekey:  b.SignedPrekey,
		OneTimePrekey: otp,
	}
}
