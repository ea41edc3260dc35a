package session

import (
	"context"
	"fmt"
	"sync"

	"lite-signal/common"
	"lite-signal/crypto/key_ed25519"
	"lite-signal/keyring"
	"lite-signal/protocol/keyschedule"
	"lite-signal/protocol/x3dh/alice"
	"lite-signal/protocol/x3dh/bob"

	"github.com/sirupsen/logrus"
)

// KeySource is the local key material the manager agrees sessions with.
// *keyring.Keyring implements it.
type KeySource interface {
	Identity(ctx context.Context) (*key_ed25519.Pair, error)
	SignedPrekey(ctx context.Context) (*keyring.SignedPrekey, error)
	bob.OneTimePrekeyStore
}

// Manager owns the in-memory session cache and its durable copy.
type Manager struct {
	localID string
	keys    KeySource
	store   *Store
	logger  logrus.FieldLogger
	verify  bool

	mu       sync.RWMutex
	sessions map[string]*Session
}

type Option func(*Manager)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSignatureVerification makes StartSession reject bundles whose signed
// prekey signature does not verify.
func WithSignatureVerification(enabled bool) Option {
	return func(m *Manager) { m.verify = enabled }
}

// NewManager loads every stored session for localID.
func NewManager(ctx context.Context, localID string, keys KeySource, store *Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		localID: localID,
		keys:    keys,
		store:   store,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	sessions, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	m.sessions = sessions
	m.logger.Debugf("Loaded %d sessions for %s", len(sessions), localID)
	return m, nil
}

func (m *Manager) LocalID() string {
	return m.localID
}

// StartSession runs the initiator side of the key agreement against the
// peer's bundle and replaces any existing session with that peer.
func (m *Manager) StartSession(ctx context.Context, peerID string, bundle *common.PrekeyBundle) (*Session, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	peer := alice.FromPrekeyBundle(bundle)
	if err := alice.VerifyBundle(peer, m.verify); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedBundle, err)
	}

	identity, err := m.keys.Identity(ctx)
	if err != nil {
		return nil, err
	}
	ephemeral, err := key_ed25519.NewPair()
	if err != nil {
		return nil, err
	}

	secret, err := alice.PerformKeyAgreement(&alice.AliceKeyBundle{
		IdentityKey:  identity.Priv,
		EphemeralKey: ephemeral.Priv,
	}, peer)
	if err != nil {
		return nil, fmt.Errorf("key agreement with %s: %w", peerID, err)
	}
	rootKey, err := keyschedule.RootKey(secret)
	if err != nil {
		return nil, err
	}

	s, err := newSession(params{
		localID:           m.localID,
		peerID:            peerID,
		rootKey:           rootKey,
		isInitiator:       true,
		localIdentityKey:  identity.Pub,
		localEphemeralKey: ephemeral.Pub,
		peerIdentityKey:   bundle.IdentityKey,
		oneTimePrekeyID:   peer.OneTimeID,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Infof("Started session with %s", peerID)
	return s.Clone(), nil
}

// BuildFromIncoming runs the responder side of the key agreement from a
// received header without storing the result. A referenced one-time prekey
// is consumed.
func (m *Manager) BuildFromIncoming(ctx context.Context, peerID string, ephemeralKey, identityKey key_ed25519.PublicKey, oneTimePrekeyID *uint32) (*Session, error) {
	if err := identityKey.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sender identity key: %w", common.ErrMalformedMessage, err)
	}
	if err := ephemeralKey.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sender ephemeral key: %w", common.ErrMalformedMessage, err)
	}

	identity, err := m.keys.Identity(ctx)
	if err != nil {
		return nil, err
	}
	spk, err := m.keys.SignedPrekey(ctx)
	if err != nil {
		return nil, err
	}

	secret, err := bob.PerformKeyAgreement(ctx, &bob.BobPrekeyBundle{
		IdentityKey: identity.Priv,
		Prekey:      spk.Pair.Priv,
	}, &bob.ReceivedAliceKeyBundle{
		IdentityKey:     identityKey,
		EphemeralKey:    ephemeralKey,
		OneTimePrekeyID: oneTimePrekeyID,
	}, m.keys, m.logger.WithField("peer_id", peerID))
	if err != nil {
		return nil, fmt.Errorf("key agreement with %s: %w", peerID, err)
	}
	rootKey, err := keyschedule.RootKey(secret)
	if err != nil {
		return nil, err
	}

	return newSession(params{
		localID:           m.localID,
		peerID:            peerID,
		rootKey:           rootKey,
		isInitiator:       false,
		localIdentityKey:  identity.Pub,
		localEphemeralKey: spk.Pair.Pub,
		peerIdentityKey:   identityKey,
		oneTimePrekeyID:   oneTimePrekeyID,
	})
}

// StartSessionFromIncoming is BuildFromIncoming followed by Save.
func (m *Manager) StartSessionFromIncoming(ctx context.Context, peerID string, ephemeralKey, identityKey key_ed25519.PublicKey, oneTimePrekeyID *uint32) (*Session, error) {
	s, err := m.BuildFromIncoming(ctx, peerID, ephemeralKey, identityKey, oneTimePrekeyID)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Infof("Started session from incoming message of %s", peerID)
	return s.Clone(), nil
}

// Get returns a copy of the cached session. Mutations take effect through Save.
func (m *Manager) Get(peerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peerID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (m *Manager) Has(peerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[peerID]
	return ok
}

// Peers lists every peer with a cached session.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]string, 0, len(m.sessions))
	for peerID := range m.sessions {
		peers = append(peers, peerID)
	}
	return peers
}

// Save persists s and then replaces the cached copy. The cache is left alone
// when persisting fails.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.PeerID] = s.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Manager) RemoveSession(ctx context.Context, peerID string) error {
	if err := m.store.Delete(ctx, peerID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, peerID)
	m.mu.Unlock()
	m.logger.Infof("Removed session with %s", peerID)
	return nil
}
