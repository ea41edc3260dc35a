// Package cipher seals and opens message payloads under a message key with
// the header bound in as associated data.
package cipher

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"lite-signal/common"
	"lite-signal/crypto/aead"
)

type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	AuthTag    []byte
}

// CanonicalAAD renders the header as
// "v=…|sid=…|s=…|n=…|ik=…|ek=…|otp=…|p=…". Keys are standard base64, a
// missing one-time prekey id is empty and p is "true" or "false". Field
// order and formatting are part of the wire format.
func CanonicalAAD(h *common.Header) []byte {
	otp := ""
	if h.ReceiverOneTimePrekeyID != nil {
		otp = strconv.FormatUint(uint64(*h.ReceiverOneTimePrekeyID), 10)
	}

	var b strings.Builder
	b.WriteString("v=")
	b.WriteString(h.Version)
	b.WriteString("|sid=")
	b.WriteString(h.SessionID)
	b.WriteString("|s=")
	b.WriteString(h.SenderID)
	b.WriteString("|n=")
	b.WriteString(strconv.FormatUint(uint64(h.MessageNumber), 10))
	b.WriteString("|ik=")
	b.WriteString(base64.StdEncoding.EncodeToString(h.SenderIdentityKey))
	b.WriteString("|ek=")
	b.WriteString(base64.StdEncoding.EncodeToString(h.SenderEphemeralKey))
	b.WriteString("|otp=")
	b.WriteString(otp)
	b.WriteString("|p=")
	b.WriteString(strconv.FormatBool(h.IsPrekeyMessage))
	return []byte(b.String())
}

// LegacyAAD is the JSON header encoding used by clients that predate
// CanonicalAAD.
func LegacyAAD(h *common.Header) ([]byte, error) {
	return json.Marshal(h)
}

// Encrypt seals plaintext under messageKey with CanonicalAAD(header).
func Encrypt(messageKey, plaintext []byte, header *common.Header) (*Sealed, error) {
	return EncryptWithAAD(messageKey, plaintext, CanonicalAAD(header))
}

func EncryptWithAAD(messageKey, plaintext, aad []byte) (*Sealed, error) {
	ciphertext, nonce, tag, err := aead.Seal(messageKey, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &Sealed{Ciphertext: ciphertext, Nonce: nonce, AuthTag: tag}, nil
}

// Decrypt returns common.ErrAuthenticationFailure when the tag does not verify.
func Decrypt(messageKey, ciphertext, nonce, authTag, aad []byte) ([]byte, error) {
	plaintext, err := aead.Open(messageKey, ciphertext, nonce, authTag, aad)
	if errors.Is(err, aead.ErrAuthentication) {
		return nil, common.ErrAuthenticationFailure
	}
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
