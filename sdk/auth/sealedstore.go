package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealedPrefix = "np1."
	sealSaltSize = 16

	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// ErrSealedValue is returned when a stored value cannot be decrypted.
var ErrSealedValue = errors.New("credential store: sealed value is invalid or the key is wrong")

// SealedStore encrypts every slot value with XChaCha20-Poly1305 before handing it to
// the wrapped store. The key is derived from a passphrase with Argon2id; the salt and
// nonce travel with each value and the slot name is bound as additional data.
type SealedStore struct {
	inner      CredentialStore
	passphrase []byte

	mu    sync.Mutex
	salt  []byte
	aeads map[string]cipher.AEAD
}

// NewSealedStore wraps inner. The passphrase must not be empty.
func NewSealedStore(inner CredentialStore, passphrase string) (*SealedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("sealed store: inner store is nil")
	}
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("sealed store: passphrase is empty")
	}
	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("sealed store: generate salt: %w", err)
	}
	return &SealedStore{
		inner:      inner,
		passphrase: []byte(passphrase),
		salt:       salt,
		aeads:      make(map[string]cipher.AEAD),
	}, nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(key, sealed)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedStore) seal(key, value string) (string, error) {
	aead, err := s.aeadFor(s.salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sealed store: generate nonce: %w", err)
	}
	payload := aead.Seal(nonce, nonce, []byte(value), []byte(key))
	raw := make([]byte, 0, len(s.salt)+len(payload))
	raw = append(raw, s.salt...)
	raw = append(raw, payload...)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *SealedStore) open(key, sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrSealedValue
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil || len(raw) < sealSaltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", ErrSealedValue
	}
	salt, payload := raw[:sealSaltSize], raw[sealSaltSize:]
	aead, err := s.aeadFor(salt)
	if err != nil {
		return "", err
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", ErrSealedValue
	}
	return string(plain), nil
}

// aeadFor derives (and caches) the cipher for salt.
func (s *SealedStore) aeadFor(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if aead, ok := s.aeads[string(salt)]; ok {
		return aead, nil
	}
	derived := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("sealed store: init cipher: %w", err)
	}
	s.aeads[string(salt)] = aead
	return aead, nil
}
