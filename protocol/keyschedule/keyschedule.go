// Package keyschedule derives every symmetric key of a session from its
// static root key. Nothing here ratchets: the same inputs always give the
// same key, on either peer.
package keyschedule

import (
	"fmt"

	"lite-signal/configs"
	"lite-signal/crypto"
	"lite-signal/crypto/hkdf"
)

// Direction tags a legacy message key. Legacy clients only ever derived
// outbound keys, so both ends of the wire use Outbound.
type Direction string

const Outbound Direction = "out"

const (
	roleInitiator = "initiator"
	roleResponder = "responder"
)

// RootKey derives the session root key from the raw X3DH output.
func RootKey(combinedSecret []byte) ([]byte, error) {
	return hkdf.Derive(combinedSecret, configs.RootKeyInfo, crypto.KeySize)
}

// DirectionKey is the base key of one sender within one session.
func DirectionKey(rootKey []byte, sessionID, senderID string) ([]byte, error) {
	return hkdf.Derive(rootKey, fmt.Sprintf(configs.DirectionKeyInfoFormat, sessionID, senderID), crypto.KeySize)
}

func MessageKey(directionKey []byte, sessionID string, messageNumber uint32) ([]byte, error) {
	return hkdf.Derive(directionKey, fmt.Sprintf(configs.MessageKeyInfoFormat, sessionID, messageNumber), crypto.KeySize)
}

// SenderMessageKey chains DirectionKey and MessageKey.
func SenderMessageKey(rootKey []byte, sessionID, senderID string, messageNumber uint32) ([]byte, error) {
	dk, err := DirectionKey(rootKey, sessionID, senderID)
	if err != nil {
		return nil, err
	}
	return MessageKey(dk, sessionID, messageNumber)
}

// LegacyBaseKeys returns the fixed send and receive keys that pre-direction-key
// clients derived once per session. The initiator's send key is the
// responder's receive key and vice versa.
func LegacyBaseKeys(rootKey []byte, isInitiator bool) (send, receive []byte, err error) {
	initiatorChain, err := hkdf.Derive(rootKey, fmt.Sprintf(configs.LegacyChainInfoFormat, roleInitiator), crypto.KeySize)
	if err != nil {
		return nil, nil, err
	}
	responderChain, err := hkdf.Derive(rootKey, fmt.Sprintf(configs.LegacyChainInfoFormat, roleResponder), crypto.KeySize)
	if err != nil {
		return nil, nil, err
	}
	if isInitiator {
		return initiatorChain, responderChain, nil
	}
	return responderChain, initiatorChain, nil
}

// LegacyMessageKey derives a message key the way pre-direction-key clients did.
func LegacyMessageKey(baseKey []byte, peerID string, dir Direction, messageNumber uint32) ([]byte, error) {
	return hkdf.Derive(baseKey, fmt.Sprintf(configs.LegacyMessageKeyInfoFormat, peerID, dir, messageNumber), crypto.KeySize)
}
