package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igtags"
	keyringPrefix  = "instagram_"
	// keyringIndex holds the JSON list of stored usernames. Keychains
	// cannot enumerate entries.
	keyringIndex = "accounts"
)

// KeyringStore keeps each account as a JSON secret in the system keychain.
type KeyringStore struct{}

// NewKeyringStore writes a throwaway secret and fails when the keychain is unusable.
func NewKeyringStore() (*KeyringStore, error) {
	const check = "availability_check"
	if err := keyring.Set(keyringService, check, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, check)
	return &KeyringStore{}, nil
}

// IsKeyringAvailable reports whether the system keychain can be used.
func IsKeyringAvailable() bool {
	_, err := NewKeyringStore()
	return err == nil
}

func secretKey(username string) string { return keyringPrefix + username }

// notFound maps the keyring's miss to ErrCredentialsNotFound.
func notFound(err error, op string) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	return fmt.Errorf("keyring %s: %w", op, err)
}

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := keyring.Set(keyringService, secretKey(account.Username), string(data)); err != nil {
		return fmt.Errorf("keyring store: %w", err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	if slices.Contains(names, account.Username) {
		return nil
	}
	return k.writeIndex(append(names, account.Username))
}

func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, secretKey(username))
	if err != nil {
		return nil, notFound(err, "retrieve")
	}

	var a Account
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &a, nil
}

// List returns the indexed accounts, skipping names whose secret is gone.
func (k *KeyringStore) List() ([]*Account, error) {
	names, err := k.index()
	if err != nil {
		return nil, err
	}
	var out []*Account
	for _, name := range names {
		if a, err := k.Retrieve(name); err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	if err := keyring.Delete(keyringService, secretKey(username)); err != nil {
		return notFound(err, "delete")
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	return k.writeIndex(slices.DeleteFunc(names, func(n string) bool { return n == username }))
}

func (k *KeyringStore) Exists(username string) bool {
	if username == "" {
		return false
	}
	_, err := keyring.Get(keyringService, secretKey(username))
	return err == nil
}

func (k *KeyringStore) index() ([]string, error) {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return names, nil
}

// writeIndex stores names sorted, or removes the index when empty.
func (k *KeyringStore) writeIndex(names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(keyringService, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring index: %w", err)
		}
		return nil
	}

	slices.Sort(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("keyring index: %w", err)
	}
	return nil
}
