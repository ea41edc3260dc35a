// Package session holds pairwise session state, its persistence and the
// manager that creates sessions from key agreement.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"lite-signal/configs"
	"lite-signal/crypto"
	"lite-signal/crypto/key_ed25519"
	"lite-signal/crypto/sha256"
	"lite-signal/protocol/keyschedule"
)

var ErrInvalidSession = errors.New("invalid session record")

// Session is the state shared with one peer. RootKey and the legacy base
// keys never change after creation; only the counters move.
type Session struct {
	PeerID               string                `json:"peerId"`
	SessionID            string                `json:"sessionId"`
	RootKey              []byte                `json:"rootKey"`
	SendMessageNumber    uint32                `json:"sendMessageNumber"`
	ReceiveMessageNumber uint32                `json:"receiveMessageNumber"`
	IsInitiator          bool                  `json:"isInitiator"`
	LocalIdentityKey     key_ed25519.PublicKey `json:"localIdentityKey"`
	LocalEphemeralKey    key_ed25519.PublicKey `json:"localEphemeralKey"`
	PeerIdentityKey      key_ed25519.PublicKey `json:"peerIdentityKey"`
	UsedOneTimePrekeyID  *uint32               `json:"usedOneTimePrekeyId"`
	LegacySendKey        []byte                `json:"legacySendKey"`
	LegacyReceiveKey     []byte                `json:"legacyReceiveKey"`
}

// SessionID is hex(SHA-256) of both user ids sorted and joined by "_", so
// both peers compute the same value.
func SessionID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return sha256.HexHash([]byte(strings.Join(ids, configs.SessionIDSeparator)))
}

type params struct {
	localID           string
	peerID            string
	rootKey           []byte
	isInitiator       bool
	localIdentityKey  key_ed25519.PublicKey
	localEphemeralKey key_ed25519.PublicKey
	peerIdentityKey   key_ed25519.PublicKey
	oneTimePrekeyID   *uint32
}

func newSession(p params) (*Session, error) {
	send, receive, err := keyschedule.LegacyBaseKeys(p.rootKey, p.isInitiator)
	if err != nil {
		return nil, fmt.Errorf("derive legacy keys: %w", err)
	}
	s := &Session{
		PeerID:            p.peerID,
		SessionID:         SessionID(p.localID, p.peerID),
		RootKey:           p.rootKey,
		IsInitiator:       p.isInitiator,
		LocalIdentityKey:  p.localIdentityKey,
		LocalEphemeralKey: p.localEphemeralKey,
		PeerIdentityKey:   p.peerIdentityKey,
		LegacySendKey:     send,
		LegacyReceiveKey:  receive,
	}
	if p.oneTimePrekeyID != nil {
		id := *p.oneTimePrekeyID
		s.UsedOneTimePrekeyID = &id
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.RootKey = append([]byte(nil), s.RootKey...)
	c.LocalIdentityKey = append(key_ed25519.PublicKey(nil), s.LocalIdentityKey...)
	c.LocalEphemeralKey = append(key_ed25519.PublicKey(nil), s.LocalEphemeralKey...)
	c.PeerIdentityKey = append(key_ed25519.PublicKey(nil), s.PeerIdentityKey...)
	c.LegacySendKey = append([]byte(nil), s.LegacySendKey...)
	c.LegacyReceiveKey = append([]byte(nil), s.LegacyReceiveKey...)
	if s.UsedOneTimePrekeyID != nil {
		id := *s.UsedOneTimePrekeyID
		c.UsedOneTimePrekeyID = &id
	}
	return &c
}

func (s *Session) validate() error {
	switch {
	case s.PeerID == "":
		return fmt.Errorf("%w: missing peer id", ErrInvalidSession)
	case s.SessionID == "":
		return fmt.Errorf("%w: missing session id", ErrInvalidSession)
	case len(s.RootKey) != crypto.KeySize:
		return fmt.Errorf("%w: root key is %d bytes", ErrInvalidSession, len(s.RootKey))
	case len(s.LegacySendKey) != crypto.KeySize || len(s.LegacyReceiveKey) != crypto.KeySize:
		return fmt.Errorf("%w: bad legacy keys", ErrInvalidSession)
	}
	return nil
}
