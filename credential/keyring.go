package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "replybot"
	tokenKey    = "gmail-token"
)

// Store persists the token record between runs.
type Store interface {
	Load() (Record, error)
	Save(rec Record) error
}

// KeyringStore keeps the record as JSON in the system keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// OpenKeyring opens the system keyring, falling back to an encrypted file
// in dir when no native backend is available.
func OpenKeyring(dir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("replybot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// Load returns ErrNoToken when the keyring holds no record.
func (s *KeyringStore) Load() (Record, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return Record{}, ErrNoToken
	}
	if err != nil {
		return Record{}, fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}

	var rec Record
	if err := json.Unmarshal(item.Data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding credential %q: %w", tokenKey, err)
	}
	return rec, nil
}

func (s *KeyringStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", tokenKey, err)
	}
	err = s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        data,
		Label:       "replybot Gmail token",
		Description: "OAuth token for the replybot mail account",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}
