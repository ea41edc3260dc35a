package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/keystore"

	"github.com/sirupsen/logrus"
)

// Store persists sessions in a keystore under "session_{peerId}".
type Store struct {
	ks     keystore.Keystore
	logger logrus.FieldLogger
}

func NewStore(ks keystore.Keystore, logger logrus.FieldLogger) *Store {
	return &Store{ks: ks, logger: logger}
}

func sessionKey(peerID string) string {
	return configs.SessionKeyPrefix + peerID
}

func (st *Store) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := st.ks.Set(ctx, sessionKey(s.PeerID), string(data)); err != nil {
		return fmt.Errorf("%w: save session for %s: %w", common.ErrStorageFailure, s.PeerID, err)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, peerID string) error {
	if err := st.ks.Delete(ctx, sessionKey(peerID)); err != nil {
		return fmt.Errorf("%w: delete session for %s: %w", common.ErrStorageFailure, peerID, err)
	}
	return nil
}

// LoadAll reads every stored session keyed by peer id. Records that cannot
// be read or parsed are logged and skipped.
func (st *Store) LoadAll(ctx context.Context) (map[string]*Session, error) {
	keys, err := st.ks.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", common.ErrStorageFailure, err)
	}

	sessions := make(map[string]*Session)
	for _, key := range keys {
		peerID, ok := strings.CutPrefix(key, configs.SessionKeyPrefix)
		if !ok {
			continue
		}
		log := st.logger.WithField("key", key)

		raw, err := st.ks.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Skipping unreadable session")
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			log.WithError(err).Warn("Skipping corrupt session")
			continue
		}
		if err := s.validate(); err != nil {
			log.WithError(err).Warn("Skipping invalid session")
			continue
		}
		if s.PeerID != peerID {
			log.Warnf("Skipping session stored for %s but owned by %s", peerID, s.PeerID)
			continue
		}
		sessions[peerID] = &s
	}
	return sessions, nil
}
