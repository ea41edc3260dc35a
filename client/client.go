// Package client ties local keys, sessions, the directory and the relay into
// a messaging client.
package client

import (
	"context"
	"fmt"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/directory"
	"lite-signal/keyring"
	"lite-signal/keystore"
	"lite-signal/protocol/e2ee"
	"lite-signal/protocol/fingerprint"
	"lite-signal/protocol/session"
	"lite-signal/relay"

	"github.com/sirupsen/logrus"
)

type Client struct {
	userID    string
	keys      *keyring.Keyring
	protocol  *e2ee.Protocol
	directory *directory.Client
	conn      *relay.Conn
	logger    logrus.FieldLogger
}

type options struct {
	verifySignatures bool
}

type Option func(*options)

// WithSignatureVerification rejects peer bundles whose signed prekey does not
// verify against their identity key.
func WithSignatureVerification(enabled bool) Option {
	return func(o *options) { o.verifySignatures = enabled }
}

// New loads userID's keys and sessions from ks.
func New(ctx context.Context, userID string, ks keystore.Keystore, dir *directory.Client, logger logrus.FieldLogger, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger = logger.WithField("user_id", userID)
	keys := keyring.New(ks)
	sessions, err := session.NewManager(ctx, userID, keys, session.NewStore(ks, logger),
		session.WithLogger(logger),
		session.WithSignatureVerification(o.verifySignatures),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	return &Client{
		userID:    userID,
		keys:      keys,
		protocol:  e2ee.New(sessions, logger),
		directory: dir,
		logger:    logger,
	}, nil
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) Keys() *keyring.Keyring {
	return c.keys
}

func (c *Client) Protocol() *e2ee.Protocol {
	return c.protocol
}

// Init generates key material unless it already exists. It reports whether
// new keys were created.
func (c *Client) Init(ctx context.Context) (bool, error) {
	has, err := c.keys.HasIdentity(ctx)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	if _, err := c.keys.Generate(ctx, configs.DefaultSignedPrekeyID, configs.DefaultOneTimePrekeys); err != nil {
		return false, fmt.Errorf("failed to generate keys: %w", err)
	}
	c.logger.Info("Generated identity, signed prekey and one-time prekeys")
	return true, nil
}

// Register makes sure keys exist and publishes them to the directory.
func (c *Client) Register(ctx context.Context) error {
	if _, err := c.Init(ctx); err != nil {
		return err
	}
	bundle, err := c.keys.PublicBundle(ctx)
	if err != nil {
		return err
	}
	if err := c.directory.PublishBundle(ctx, c.userID, bundle); err != nil {
		return fmt.Errorf("failed to publish keys: %w", err)
	}
	c.logger.Infof("Published keys with %d one-time prekeys", len(bundle.OneTimePrekeys))
	return nil
}

// Replenish tops the server's one-time prekey pool back up to target and
// returns how many prekeys were added.
func (c *Client) Replenish(ctx context.Context, target int) (int, error) {
	count, err := c.directory.CountOneTimePrekeys(ctx, c.userID)
	if err != nil {
		return 0, err
	}
	missing := target - int(count)
	if missing <= 0 {
		return 0, nil
	}

	fresh, err := c.keys.AddOneTimePrekeys(ctx, missing)
	if err != nil {
		return 0, err
	}
	if err := c.directory.UploadOneTimePrekeys(ctx, c.userID, fresh); err != nil {
		return 0, fmt.Errorf("failed to publish one-time prekeys: %w", err)
	}
	c.logger.Infof("Published %d new one-time prekeys", missing)
	return missing, nil
}

// StartChat fetches peerID's bundle and starts a fresh session with it.
func (c *Client) StartChat(ctx context.Context, peerID string) error {
	bundle, err := c.directory.FetchBundle(ctx, peerID)
	if err != nil {
		return fmt.Errorf("failed to fetch keys of %s: %w", peerID, err)
	}
	return c.protocol.StartSession(ctx, peerID, bundle)
}

// Fingerprint returns the formatted safety number for the session with
// peerID.
func (c *Client) Fingerprint(ctx context.Context, peerID string) (string, error) {
	s, ok := c.protocol.Sessions().Get(peerID)
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrNoSession, peerID)
	}
	identity, err := c.keys.Identity(ctx)
	if err != nil {
		return "", err
	}
	number, err := fingerprint.SafetyNumber(c.userID, identity.Pub, peerID, s.PeerIdentityKey)
	if err != nil {
		return "", err
	}
	return fingerprint.Format(number), nil
}
