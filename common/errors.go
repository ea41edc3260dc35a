package common

import "errors"

var (
	// ErrKeysUnavailable means local identity or signed-prekey material is
	// missing; the user has to re-enroll.
	ErrKeysUnavailable = errors.New("local key material unavailable, re-enrollment required")
	// ErrNoSession is returned when encrypting to a peer without a session.
	ErrNoSession = errors.New("no session with peer")
	// ErrAuthenticationFailure is returned when no decryption attempt verifies.
	ErrAuthenticationFailure = errors.New("message authentication failed")
	ErrMalformedBundle       = errors.New("malformed prekey bundle")
	ErrMalformedMessage      = errors.New("malformed message")
	ErrStorageFailure        = errors.New("keystore failure")
	// ErrCounterExhausted is returned once a session has used every message
	// number; a new session has to be started.
	ErrCounterExhausted = errors.New("message counter exhausted")
)
