package keystore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	fileFormatVersion = 1
)

var (
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")
)

// ScryptParams tunes the passphrase KDF of a File keystore.
type ScryptParams struct {
	N, R, P int
}

var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// blob is the on-disk JSON structure holding the sealed key-value map.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// File is a Keystore persisted as one passphrase-encrypted file. The whole
// map is kept in memory and rewritten on every mutation.
type File struct {
	path       string
	passphrase string
	params     ScryptParams

	mu   sync.Mutex
	data map[string]string
}

// OpenFile loads path, creating an empty keystore if it does not exist.
func OpenFile(path, passphrase string, params ScryptParams) (*File, error) {
	if passphrase == "" {
		return nil, errors.New("keystore passphrase required")
	}
	f := &File{
		path:       path,
		passphrase: passphrase,
		params:     params,
		data:       make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	plain, err := openBlob(passphrase, raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plain, &f.data); err != nil {
		return nil, fmt.Errorf("decoding keystore: %w", err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[key]
	f.data[key] = value
	if err := f.flush(); err != nil {
		if existed {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[key]
	if !existed {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) ListKeys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// flush writes the sealed map via a temp file then rename. Caller holds mu.
func (f *File) flush() error {
	plain, err := json.Marshal(f.data)
	if err != nil {
		return err
	}
	sealed, err := sealBlob(f.passphrase, plain, f.params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func sealBlob(passphrase string, plain []byte, params ScryptParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(blob{
		V:      fileFormatVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plain, salt[:]),
	})
}

func openBlob(passphrase string, raw []byte) ([]byte, error) {
	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.V > fileFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", b.V)
	}

	key, err := scrypt.Key([]byte(passphrase), b.Salt, b.N, b.R, b.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(b.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	plain, err := aead.Open(nil, b.Nonce, b.Cipher, b.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
