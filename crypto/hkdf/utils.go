package hkdf

import (
	"errors"
	"io"

	"lite-signal/crypto"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidLength = errors.New("invalid output length")

	// zeroSalt is the fixed extract salt; domain separation lives in info.
	zeroSalt = make([]byte, crypto.HMACSHA256Size)
)

// Derive runs HKDF-SHA-256 over secret with an all-zero salt and returns
// length bytes of output bound to info.
func Derive(secret []byte, info string, length int) ([]byte, error) {
	if length <= 0 || length > 255*crypto.HMACSHA256Size {
		return nil, ErrInvalidLength
	}
	hkdfReader := hkdf.New(crypto.DefaultHashFunc, secret, zeroSalt, []byte(info))

	key := make([]byte, length)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// New32BytesKeyFromSecret derives a 32-byte key from secret under info
func New32BytesKeyFromSecret(secret []byte, info string) ([]byte, error) {
	return Derive(secret, info, crypto.KeySize)
}
