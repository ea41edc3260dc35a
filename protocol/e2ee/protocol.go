// Package e2ee is the entry point for encrypting to and decrypting from a
// peer. It drives sessions, key derivation and the cipher, and falls back
// through older wire formats when a message does not open with the current
// one.
package e2ee

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/protocol/cipher"
	"lite-signal/protocol/keyschedule"
	"lite-signal/protocol/session"

	"github.com/sirupsen/logrus"
)

type Protocol struct {
	localID  string
	sessions *session.Manager
	logger   logrus.FieldLogger

	locksMu sync.Mutex
	locks   map[string]*peerLock
}

type peerLock struct {
	mu   sync.Mutex
	refs int
}

func New(sessions *session.Manager, logger logrus.FieldLogger) *Protocol {
	return &Protocol{
		localID:  sessions.LocalID(),
		sessions: sessions,
		logger:   logger,
		locks:    make(map[string]*peerLock),
	}
}

// lock serialises every operation for one peer. The entry is dropped once
// no caller holds or waits for it.
func (p *Protocol) lock(peerID string) func() {
	p.locksMu.Lock()
	l, ok := p.locks[peerID]
	if !ok {
		l = &peerLock{}
		p.locks[peerID] = l
	}
	l.refs++
	p.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, peerID)
		}
		p.locksMu.Unlock()
	}
}

func (p *Protocol) Sessions() *session.Manager {
	return p.sessions
}

// StartSession agrees a new session with peerID from its prekey bundle.
func (p *Protocol) StartSession(ctx context.Context, peerID string, bundle *common.PrekeyBundle) error {
	defer p.lock(peerID)()
	_, err := p.sessions.StartSession(ctx, peerID, bundle)
	return err
}

func (p *Protocol) HasSession(peerID string) bool {
	return p.sessions.Has(peerID)
}

func (p *Protocol) RemoveSession(ctx context.Context, peerID string) error {
	defer p.lock(peerID)()
	return p.sessions.RemoveSession(ctx, peerID)
}

// EncryptMessage encrypts plaintext for peerID with the next send counter and
// persists the advanced counter before returning.
func (p *Protocol) EncryptMessage(ctx context.Context, peerID string, plaintext []byte) (*common.EncryptedMessage, error) {
	defer p.lock(peerID)()

	s, ok := p.sessions.Get(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNoSession, peerID)
	}

	n := s.SendMessageNumber
	if n == math.MaxUint32 {
		return nil, fmt.Errorf("%w: session with %s", common.ErrCounterExhausted, peerID)
	}
	key, err := keyschedule.SenderMessageKey(s.RootKey, s.SessionID, p.localID, n)
	if err != nil {
		return nil, err
	}
	header := p.header(s, configs.ProtocolVersion)

	sealed, err := cipher.Encrypt(key, plaintext, &header)
	if err != nil {
		return nil, fmt.Errorf("encrypt message %d for %s: %w", n, peerID, err)
	}

	s.SendMessageNumber++
	if err := p.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	return &common.EncryptedMessage{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		AuthTag:    sealed.AuthTag,
		Header:     header,
	}, nil
}

func (p *Protocol) header(s *session.Session, version string) common.Header {
	h := common.Header{
		SenderID:           p.localID,
		MessageNumber:      s.SendMessageNumber,
		SessionID:          s.SessionID,
		SenderIdentityKey:  s.LocalIdentityKey,
		SenderEphemeralKey: s.LocalEphemeralKey,
		IsPrekeyMessage:    s.IsInitiator && s.SendMessageNumber == 0,
		Version:            version,
	}
	if s.IsInitiator && s.UsedOneTimePrekeyID != nil {
		id := *s.UsedOneTimePrekeyID
		h.ReceiverOneTimePrekeyID = &id
	}
	return h
}

// DecryptMessage opens msg from peerID. A message from a peer without a
// session starts one from the header. Messages the local user sent to
// peerID decrypt too, but never advance the receive counter.
func (p *Protocol) DecryptMessage(ctx context.Context, peerID string, msg *common.EncryptedMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	defer p.lock(peerID)()

	h := &msg.Header
	self := h.SenderID == p.localID
	log := p.logger.WithFields(logrus.Fields{
		"peer_id":        peerID,
		"message_number": h.MessageNumber,
		"version":        h.Version,
	})

	s, ok := p.sessions.Get(peerID)
	created := false
	if !ok {
		if self {
			return nil, fmt.Errorf("%w: %s", common.ErrNoSession, peerID)
		}
		var err error
		s, err = p.sessions.StartSessionFromIncoming(ctx, peerID, h.SenderEphemeralKey, h.SenderIdentityKey, h.ReceiverOneTimePrekeyID)
		if err != nil {
			return nil, err
		}
		created = true
	}

	rb := &rebuilder{}
	if !self && !created {
		rb.build = func() (*session.Session, error) {
			return p.sessions.BuildFromIncoming(ctx, peerID, h.SenderEphemeralKey, h.SenderIdentityKey, h.ReceiverOneTimePrekeyID)
		}
	}

	res, err := p.run(p.ladder(s, rb.session(log), self), msg, log)
	if errors.Is(err, common.ErrAuthenticationFailure) && rb.err != nil && errors.Is(rb.err, common.ErrStorageFailure) {
		return nil, rb.err
	}
	if err != nil {
		return nil, err
	}

	log.WithField("attempt", res.attempt).Debug("Decrypted message")

	winner := res.session
	dirty := winner != s
	if dirty {
		log.Info("Replaced session rebuilt from message header")
	}
	if !self {
		if next := advance(winner.ReceiveMessageNumber, h.MessageNumber); next != winner.ReceiveMessageNumber {
			winner.ReceiveMessageNumber = next
			dirty = true
		}
	}
	if dirty {
		if err := p.sessions.Save(ctx, winner); err != nil {
			return nil, err
		}
	}
	return res.plaintext, nil
}

// advance returns the receive counter after accepting message n. It never
// decreases and saturates at math.MaxUint32.
func advance(current, n uint32) uint32 {
	if n < current {
		return current
	}
	if n == math.MaxUint32 {
		return n
	}
	return n + 1
}

// rebuilder builds a session from the message header at most once. A nil
// build means the header must not be used to rebuild.
type rebuilder struct {
	build func() (*session.Session, error)
	once  sync.Once
	s     *session.Session
	err   error
}

func (r *rebuilder) session(log logrus.FieldLogger) func() *session.Session {
	return func() *session.Session {
		if r.build == nil {
			return nil
		}
		r.once.Do(func() {
			r.s, r.err = r.build()
			if r.err != nil {
				log.WithError(r.err).Warn("Could not rebuild session from message header")
			}
		})
		return r.s
	}
}

// LegacyScheme selects which older wire format EncryptLegacyMessage writes.
type LegacyScheme int

const (
	LegacyNoAAD LegacyScheme = iota
	LegacyJSONAAD
	LegacyCanonicalAAD
)

func (l LegacyScheme) String() string {
	switch l {
	case LegacyNoAAD:
		return "legacy-no-aad"
	case LegacyJSONAAD:
		return "legacy-json-aad"
	case LegacyCanonicalAAD:
		return "legacy-canonical-aad"
	}
	return fmt.Sprintf("LegacyScheme(%d)", int(l))
}

// EncryptLegacyMessage produces a message the way clients that predate
// direction keys did. It shares the send counter with EncryptMessage.
func (p *Protocol) EncryptLegacyMessage(ctx context.Context, peerID string, plaintext []byte, scheme LegacyScheme) (*common.EncryptedMessage, error) {
	defer p.lock(peerID)()

	s, ok := p.sessions.Get(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNoSession, peerID)
	}

	n := s.SendMessageNumber
	if n == math.MaxUint32 {
		return nil, fmt.Errorf("%w: session with %s", common.ErrCounterExhausted, peerID)
	}
	key, err := keyschedule.LegacyMessageKey(s.LegacySendKey, peerID, keyschedule.Outbound, n)
	if err != nil {
		return nil, err
	}

	version := configs.LegacyVersionAAD
	if scheme == LegacyNoAAD {
		version = configs.LegacyVersionNoAAD
	}
	header := p.header(s, version)

	var aad []byte
	switch scheme {
	case LegacyNoAAD:
	case LegacyJSONAAD:
		if aad, err = cipher.LegacyAAD(&header); err != nil {
			return nil, err
		}
	case LegacyCanonicalAAD:
		aad = cipher.CanonicalAAD(&header)
	default:
		return nil, fmt.Errorf("unknown legacy scheme %s", scheme)
	}

	sealed, err := cipher.EncryptWithAAD(key, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt %s message %d for %s: %w", scheme, n, peerID, err)
	}

	s.SendMessageNumber++
	if err := p.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	return &common.EncryptedMessage{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		AuthTag:    sealed.AuthTag,
		Header:     header,
	}, nil
}
