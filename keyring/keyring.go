// Package keyring manages the local user's private key material in a
// keystore: identity key, signed prekey and one-time prekeys.
package keyring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/crypto/key_ed25519"
	"lite-signal/crypto/signer_schnorr"
	"lite-signal/keystore"
)

// SignedPrekey is the medium-term prekey together with its id and signature.
type SignedPrekey struct {
	ID        uint32           `json:"id"`
	Pair      key_ed25519.Pair `json:"pair"`
	Signature []byte           `json:"signature"`
}

type Keyring struct {
	ks keystore.Keystore
}

func New(ks keystore.Keystore) *Keyring {
	return &Keyring{ks: ks}
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrStorageFailure, op, key, err)
}

func oneTimePrekeyName(id uint32) string {
	return configs.OneTimePrekeyPrefix + strconv.FormatUint(uint64(id), 10)
}

// HasIdentity reports whether an identity key has been generated.
func (k *Keyring) HasIdentity(ctx context.Context) (bool, error) {
	_, err := k.ks.Get(ctx, configs.IdentityKeyName)
	if errors.Is(err, keystore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("get", configs.IdentityKeyName, err)
	}
	return true, nil
}

// Generate creates a new identity key, a signed prekey with id signedPrekeyID
// and oneTimeCount one-time prekeys, replacing any existing material.
func (k *Keyring) Generate(ctx context.Context, signedPrekeyID uint32, oneTimeCount int) (*common.PublishBundle, error) {
	identity, err := key_ed25519.NewPair()
	if err != nil {
		return nil, err
	}
	if err := k.putJSON(ctx, configs.IdentityKeyName, identity); err != nil {
		return nil, err
	}
	if _, err := k.RotateSignedPrekey(ctx, signedPrekeyID); err != nil {
		return nil, err
	}
	if err := k.ks.Set(ctx, configs.OneTimePrekeyNextIDName, strconv.Itoa(configs.DefaultFirstOneTimeID)); err != nil {
		return nil, storageErr("set", configs.OneTimePrekeyNextIDName, err)
	}
	if _, err := k.AddOneTimePrekeys(ctx, oneTimeCount); err != nil {
		return nil, err
	}
	return k.PublicBundle(ctx)
}

// RotateSignedPrekey replaces the signed prekey with a fresh one signed by
// the identity key.
func (k *Keyring) RotateSignedPrekey(ctx context.Context, id uint32) (*SignedPrekey, error) {
	identity, err := k.Identity(ctx)
	if err != nil {
		return nil, err
	}
	pair, err := key_ed25519.NewPair()
	if err != nil {
		return nil, err
	}
	sig, err := signer_schnorr.SignPrekey(identity.Priv, id, pair.Pub)
	if err != nil {
		return nil, fmt.Errorf("failed to sign prekey: %w", err)
	}
	spk := &SignedPrekey{ID: id, Pair: *pair, Signature: sig}
	if err := k.putJSON(ctx, configs.SignedPrekeyName, spk); err != nil {
		return nil, err
	}
	return spk, nil
}

// AddOneTimePrekeys generates n new one-time prekeys with fresh ids.
func (k *Keyring) AddOneTimePrekeys(ctx context.Context, n int) ([]common.OneTimePrekey, error) {
	next, err := k.nextOneTimeID(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]common.OneTimePrekey, 0, n)
	for i := 0; i < n; i++ {
		pair, err := key_ed25519.NewPair()
		if err != nil {
			return nil, err
		}
		id := next + uint32(i)
		if err := k.putJSON(ctx, oneTimePrekeyName(id), pair); err != nil {
			return nil, err
		}
		out = append(out, common.OneTimePrekey{KeyID: id, PublicKey: pair.Pub})
	}

	nextValue := strconv.FormatUint(uint64(next)+uint64(n), 10)
	if err := k.ks.Set(ctx, configs.OneTimePrekeyNextIDName, nextValue); err != nil {
		return nil, storageErr("set", configs.OneTimePrekeyNextIDName, err)
	}
	return out, nil
}

func (k *Keyring) nextOneTimeID(ctx context.Context) (uint32, error) {
	v, err := k.ks.Get(ctx, configs.OneTimePrekeyNextIDName)
	if errors.Is(err, keystore.ErrNotFound) {
		return configs.DefaultFirstOneTimeID, nil
	}
	if err != nil {
		return 0, storageErr("get", configs.OneTimePrekeyNextIDName, err)
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt %s: %v", common.ErrStorageFailure, configs.OneTimePrekeyNextIDName, err)
	}
	return uint32(id), nil
}

// Identity returns the identity key pair, or ErrKeysUnavailable.
func (k *Keyring) Identity(ctx context.Context) (*key_ed25519.Pair, error) {
	var pair key_ed25519.Pair
	if err := k.getJSON(ctx, configs.IdentityKeyName, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// SignedPrekey returns the current signed prekey, or ErrKeysUnavailable.
func (k *Keyring) SignedPrekey(ctx context.Context) (*SignedPrekey, error) {
	var spk SignedPrekey
	if err := k.getJSON(ctx, configs.SignedPrekeyName, &spk); err != nil {
		return nil, err
	}
	return &spk, nil
}

// OneTimePrekey returns the private one-time prekey with the given id.
// A consumed or unknown id yields keystore.ErrNotFound.
func (k *Keyring) OneTimePrekey(ctx context.Context, id uint32) (key_ed25519.PrivateKey, error) {
	name := oneTimePrekeyName(id)
	raw, err := k.ks.Get(ctx, name)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("get", name, err)
	}
	var pair key_ed25519.Pair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s: %v", common.ErrStorageFailure, name, err)
	}
	return pair.Priv, nil
}

func (k *Keyring) DeleteOneTimePrekey(ctx context.Context, id uint32) error {
	name := oneTimePrekeyName(id)
	if err := k.ks.Delete(ctx, name); err != nil {
		return storageErr("delete", name, err)
	}
	return nil
}

// OneTimePrekeys lists the public halves of every unconsumed one-time prekey.
func (k *Keyring) OneTimePrekeys(ctx context.Context) ([]common.OneTimePrekey, error) {
	keys, err := k.ks.ListKeys(ctx)
	if err != nil {
		return nil, storageErr("list", "keys", err)
	}

	var out []common.OneTimePrekey
	for _, name := range keys {
		idStr, ok := strings.CutPrefix(name, configs.OneTimePrekeyPrefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		var pair key_ed25519.Pair
		if err := k.getJSON(ctx, name, &pair); err != nil {
			return nil, err
		}
		out = append(out, common.OneTimePrekey{KeyID: uint32(id), PublicKey: pair.Pub})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out, nil
}

// PublicBundle assembles everything the directory needs to serve this user.
func (k *Keyring) PublicBundle(ctx context.Context) (*common.PublishBundle, error) {
	identity, err := k.Identity(ctx)
	if err != nil {
		return nil, err
	}
	spk, err := k.SignedPrekey(ctx)
	if err != nil {
		return nil, err
	}
	otps, err := k.OneTimePrekeys(ctx)
	if err != nil {
		return nil, err
	}
	return &common.PublishBundle{
		IdentityKey: identity.Pub,
		SignedPrekey: common.SignedPrekey{
			KeyID:     spk.ID,
			PublicKey: spk.Pair.Pub,
			Signature: spk.Signature,
		},
		OneTimePrekeys: otps,
	}, nil
}

func (k *Keyring) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := k.ks.Set(ctx, key, string(raw)); err != nil {
		return storageErr("set", key, err)
	}
	return nil
}

// getJSON maps a missing key to ErrKeysUnavailable.
func (k *Keyring) getJSON(ctx context.Context, key string, v any) error {
	raw, err := k.ks.Get(ctx, key)
	if errors.Is(err, keystore.ErrNotFound) {
		return fmt.Errorf("%w: %s missing", common.ErrKeysUnavailable, key)
	}
	if err != nil {
		return storageErr("get", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %s unreadable: %v", common.ErrKeysUnavailable, key, err)
	}
	return nil
}
