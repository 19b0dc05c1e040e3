package secretstore

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// serviceName identifies this application's entries in the OS credential
// manager (Keychain, Secret Service, Windows Credential Manager).
const serviceName = "syncagent"

// keyringAccount is the single account name under which the JSON-encoded
// Credentials blob is stored. The agent manages exactly one set of
// credentials per OS user, so no per-workspace keying is needed here.
const keyringAccount = "credentials"

// KeyringStore persists Credentials in the OS-native secure credential
// store via zalando/go-keyring.
type KeyringStore struct {
	logger *slog.Logger
}

// NewKeyringStore creates a KeyringStore.
func NewKeyringStore(logger *slog.Logger) *KeyringStore {
	return &KeyringStore{logger: logger}
}

// Save writes the credentials as a JSON blob to the OS keyring.
func (s *KeyringStore) Save(creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("secretstore: marshaling credentials: %w", err)
	}

	if err := keyring.Set(serviceName, keyringAccount, string(data)); err != nil {
		return fmt.Errorf("secretstore: writing to OS keyring: %w", err)
	}

	s.logger.Debug("credentials saved to OS keyring")

	return nil
}

// Load reads the credentials from the OS keyring. Returns
// keyring.ErrNotFound (unwrapped via errors.Is) when nothing has been
// saved yet.
func (s *KeyringStore) Load() (*Credentials, error) {
	data, err := keyring.Get(serviceName, keyringAccount)
	if err != nil {
		return nil, fmt.Errorf("secretstore: reading from OS keyring: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("secretstore: decoding credentials: %w", err)
	}

	return &creds, nil
}

// Clear removes the stored credentials from the OS keyring.
func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(serviceName, keyringAccount); err != nil {
		return fmt.Errorf("secretstore: deleting from OS keyring: %w", err)
	}

	s.logger.Debug("credentials cleared from OS keyring")

	return nil
}
