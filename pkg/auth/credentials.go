package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"igtags/pkg/config"
)

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account is an Instagram login used by the comment phase.
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is one backend in the Manager chain. Read-only backends
// reject writes with ErrStoreUnavailable.
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager consults its stores in order.
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the default chain: system keychain when available,
// an encrypted file under configDir, then INSTAGRAM_LOGIN and
// INSTAGRAM_PASSWORD from the environment.
func NewManager(configDir string) (*Manager, error) {
	m := &Manager{}
	if ks, err := NewKeyringStore(); err == nil {
		m.stores = append(m.stores, ks)
	}

	fs, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	m.stores = append(m.stores, fs, NewEnvironmentStore())
	return m, nil
}

// NewManagerWithStores uses exactly the given stores, in order.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store stamps LastModified and writes the account to the first store that
// takes it.
func (m *Manager) Store(account *Account) error {
	switch {
	case account == nil || account.Username == "":
		return errors.New("username is required")
	case account.Password == "":
		return errors.New("password is required")
	}
	account.LastModified = time.Now()

	errList := make([]error, 0, len(m.stores))
	for _, s := range m.stores {
		err := s.Store(account)
		if err == nil {
			return nil
		}
		errList = append(errList, err)
	}
	if len(errList) == 0 {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(errList...))
}

func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, s := range m.stores {
		a, err := s.Retrieve(username)
		if err == nil && a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// RetrieveDefault prefers environment credentials, then the most recently
// saved account.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, s := range m.stores {
		env, ok := s.(*EnvironmentStore)
		if !ok {
			continue
		}
		if a, err := env.Retrieve(""); err == nil {
			return a, nil
		}
	}

	accounts, _ := m.List()
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return slices.MaxFunc(accounts, func(a, b *Account) int {
		return a.LastModified.Compare(b.LastModified)
	}), nil
}

// List merges every store's accounts, sorted by username. For a username
// held by several stores the most recently modified copy wins. Stores that
// fail to list are skipped.
func (m *Manager) List() ([]*Account, error) {
	newest := make(map[string]*Account)
	for _, s := range m.stores {
		accounts, err := s.List()
		if err != nil {
			continue
		}
		for _, a := range accounts {
			if cur, seen := newest[a.Username]; !seen || a.LastModified.After(cur.LastModified) {
				newest[a.Username] = a
			}
		}
	}

	out := make([]*Account, 0, len(newest))
	for _, a := range newest {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Account) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

// Delete removes username from every store holding it. It succeeds if any
// store deleted it.
func (m *Manager) Delete(username string) error {
	deleted := false
	var failure error
	for _, s := range m.stores {
		err := s.Delete(username)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			failure = err
		}
	}

	switch {
	case deleted:
		return nil
	case failure != nil:
		return fmt.Errorf("failed to delete credentials: %w", failure)
	default:
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}
}

// Apply fills a missing login or password in cfg from stored credentials.
// Values already set in cfg are kept. It reports whether cfg changed.
func (m *Manager) Apply(cfg *config.InstagramConfig) bool {
	if cfg.Login != "" && cfg.Password != "" {
		return false
	}

	lookup := m.RetrieveDefault
	if cfg.Login != "" {
		lookup = func() (*Account, error) { return m.Retrieve(cfg.Login) }
	}
	account, err := lookup()
	if err != nil {
		return false
	}

	if cfg.Login == "" {
		cfg.Login = account.Username
	}
	if cfg.Password == "" {
		cfg.Password = account.Password
	}
	return true
}

// DefaultConfigDir returns <user config dir>/igtags, creating it with
// owner-only permissions.
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "igtags")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy safe to print.
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	masked.Password = mask(account.Password)
	return &masked
}

// mask keeps two characters at each end of secrets longer than eight.
func mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:2] + "..." + s[len(s)-2:]
}
