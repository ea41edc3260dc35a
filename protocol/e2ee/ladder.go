package e2ee

import (
	"errors"

	"lite-signal/common"
	"lite-signal/protocol/cipher"
	"lite-signal/protocol/keyschedule"
	"lite-signal/protocol/session"

	"github.com/sirupsen/logrus"
)

type (
	keyDerivation   func(s *session.Session, h *common.Header) ([]byte, error)
	aadConstruction func(h *common.Header) ([]byte, error)
)

// attempt is one rung of the decryption ladder. session may return nil, in
// which case the rung is skipped.
type attempt struct {
	name    string
	session func() *session.Session
	key     keyDerivation
	aad     aadConstruction
}

type result struct {
	plaintext []byte
	session   *session.Session
	attempt   string
}

// ladder lists the attempts in order: current keys on the stored session,
// current keys on a session rebuilt from the header, then the legacy key
// under canonical, JSON and no associated data, each on the stored session
// before the rebuilt one.
func (p *Protocol) ladder(current *session.Session, rebuilt func() *session.Session, self bool) []attempt {
	stored := func() *session.Session { return current }
	legacy := p.legacyKey(self)

	attempts := []attempt{
		{name: "current", session: stored, key: currentKey, aad: canonicalAAD},
		{name: "rebuilt", session: rebuilt, key: currentKey, aad: canonicalAAD},
	}
	for _, scheme := range []struct {
		name string
		aad  aadConstruction
	}{
		{"legacy-canonical-aad", canonicalAAD},
		{"legacy-json-aad", cipher.LegacyAAD},
		{"legacy-no-aad", noAAD},
	} {
		attempts = append(attempts,
			attempt{name: scheme.name, session: stored, key: legacy, aad: scheme.aad},
			attempt{name: scheme.name + "-rebuilt", session: rebuilt, key: legacy, aad: scheme.aad},
		)
	}
	return attempts
}

// run returns the first attempt that authenticates msg.
func (p *Protocol) run(attempts []attempt, msg *common.EncryptedMessage, log logrus.FieldLogger) (*result, error) {
	for _, a := range attempts {
		s := a.session()
		if s == nil {
			continue
		}
		key, err := a.key(s, &msg.Header)
		if err != nil {
			log.WithError(err).Debugf("Attempt %s: key derivation failed", a.name)
			continue
		}
		aad, err := a.aad(&msg.Header)
		if err != nil {
			log.WithError(err).Debugf("Attempt %s: associated data failed", a.name)
			continue
		}
		plaintext, err := cipher.Decrypt(key, msg.Ciphertext, msg.Nonce, msg.AuthTag, aad)
		if errors.Is(err, common.ErrAuthenticationFailure) {
			log.Debugf("Attempt %s did not authenticate", a.name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if a.name != "current" {
			log.Infof("Decrypted with fallback %s", a.name)
		}
		return &result{plaintext: plaintext, session: s, attempt: a.name}, nil
	}
	return nil, common.ErrAuthenticationFailure
}

func currentKey(s *session.Session, h *common.Header) ([]byte, error) {
	return keyschedule.SenderMessageKey(s.RootKey, s.SessionID, h.SenderID, h.MessageNumber)
}

// legacyKey rebuilds the key the sender derived from its own send base and
// the recipient's id.
func (p *Protocol) legacyKey(self bool) keyDerivation {
	return func(s *session.Session, h *common.Header) ([]byte, error) {
		if self {
			return keyschedule.LegacyMessageKey(s.LegacySendKey, s.PeerID, keyschedule.Outbound, h.MessageNumber)
		}
		return keyschedule.LegacyMessageKey(s.LegacyReceiveKey, p.localID, keyschedule.Outbound, h.MessageNumber)
	}
}

func canonicalAAD(h *common.Header) ([]byte, error) {
	return cipher.CanonicalAAD(h), nil
}

func noAAD(*common.Header) ([]byte, error) {
	return nil, nil
}
