// Package fingerprint computes the safety number two users compare out of
// band to confirm each other's identity keys.
package fingerprint

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"lite-signal/crypto/key_ed25519"
)

const (
	iterations     = 5200
	digitsPerParty = 30
	chunkDigits    = 5
)

var ErrEmptyUserID = errors.New("empty user id")

// digits renders one party's half of the safety number. The digest is
// iterated the way Signal's numeric fingerprint is.
func digits(identityKey key_ed25519.PublicKey, userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	if err := identityKey.Validate(); err != nil {
		return "", err
	}

	digest := append(append([]byte(nil), identityKey...), userID...)
	hash := sha512.New()
	for i := 0; i < iterations; i++ {
		hash.Reset()
		hash.Write(digest)
		hash.Write(identityKey)
		digest = hash.Sum(nil)
	}

	var b strings.Builder
	for i := 0; i < digitsPerParty/chunkDigits; i++ {
		chunk := append([]byte{0, 0, 0}, digest[i*5:(i+1)*5]...)
		fmt.Fprintf(&b, "%05d", binary.BigEndian.Uint64(chunk)%100000)
	}
	return b.String(), nil
}

// SafetyNumber returns the 60-digit number for a pair of users. Both sides
// get the same digits regardless of which one is local.
func SafetyNumber(localID string, localKey key_ed25519.PublicKey, peerID string, peerKey key_ed25519.PublicKey) (string, error) {
	local, err := digits(localKey, localID)
	if err != nil {
		return "", fmt.Errorf("local fingerprint: %w", err)
	}
	peer, err := digits(peerKey, peerID)
	if err != nil {
		return "", fmt.Errorf("peer fingerprint: %w", err)
	}
	if local > peer {
		local, peer = peer, local
	}
	return local + peer, nil
}

// Format splits a safety number into space separated groups of five digits.
func Format(number string) string {
	var b bytes.Buffer
	for i := 0; i < len(number); i += chunkDigits {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := min(i+chunkDigits, len(number))
		b.WriteString(number[i:end])
	}
	return b.String()
}
