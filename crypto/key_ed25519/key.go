package key_ed25519

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

const (
	// Size is the encoded length of both scalars and points.
	Size = 32
)

type (
	// PrivateKey is a 32-byte marshalled scalar
	PrivateKey []byte
	// PublicKey is a 32-byte marshalled point
	PublicKey []byte
	Pair      struct {
		Priv PrivateKey `json:"priv"`
		Pub  PublicKey  `json:"pub"`
	}
)

var (
	Suite = suites.MustFind("Ed25519") // Use the edwards25519-curve

	ErrInvalidKey = errors.New("invalid key encoding")
)

func New() (PrivateKey, error) {
	privK := Suite.Scalar().Pick(Suite.RandomStream())
	return privK.MarshalBinary()
}

// NewPair generates a fresh private key together with its public point.
func NewPair() (*Pair, error) {
	priv, err := New()
	if err != nil {
		return nil, err
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}
	return &Pair{Priv: priv, Pub: pub}, nil
}

func (privB PrivateKey) Public() (PublicKey, error) {
	privK, err := privB.ToScalar()
	if err != nil {
		return nil, err
	}
	pubK := Suite.Point().Mul(privK, nil)
	return pubK.MarshalBinary()
}

func (privB PrivateKey) ToScalar() (kyber.Scalar, error) {
	if len(privB) != Size {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(privB))
	}
	privK := Suite.Scalar()
	if err := privK.UnmarshalBinary(privB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return privK, nil
}

func (pubB PublicKey) ToPoint() (kyber.Point, error) {
	if len(pubB) != Size {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKey, len(pubB))
	}
	pubK := Suite.Point()
	if err := pubK.UnmarshalBinary(pubB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pubK, nil
}

// Validate reports whether pubB decodes to a curve point.
func (pubB PublicKey) Validate() error {
	_, err := pubB.ToPoint()
	return err
}

func (pubB PublicKey) Equal(other PublicKey) bool {
	return len(pubB) == len(other) && subtle.ConstantTimeCompare(pubB, other) == 1
}

// Check verifies that Pub is the public half of Priv.
func (p *Pair) Check() error {
	if p == nil {
		return ErrInvalidKey
	}
	pub, err := p.Priv.Public()
	if err != nil {
		return err
	}
	if !pub.Equal(p.Pub) {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKey)
	}
	return nil
}
