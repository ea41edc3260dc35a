package aead

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrAuthentication   = errors.New("message authentication failed")
)

// Seal encrypts plaintext under key with a fresh random nonce. The tag is
// returned detached from the ciphertext.
func Seal(key, plaintext, associatedData []byte) (ciphertext, nonce, tag []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, nil, ErrInvalidKeyLength
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, associatedData)
	split := len(sealed) - TagSize
	return sealed[:split:split], nonce, sealed[split:], nil
}

// Open verifies tag over ciphertext and associatedData and returns the
// plaintext. Any malformed input is reported as ErrAuthentication.
func Open(key, ciphertext, nonce, tag, associatedData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, ErrAuthentication
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
