package auth

import (
	"os"
	"time"
)

const (
	LoginEnv    = "INSTAGRAM_LOGIN"
	PasswordEnv = "INSTAGRAM_PASSWORD"
)

// EnvironmentStore reads one account from INSTAGRAM_LOGIN and
// INSTAGRAM_PASSWORD. Writes fail with ErrStoreUnavailable.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore { return &EnvironmentStore{} }

func (*EnvironmentStore) Store(*Account) error { return ErrStoreUnavailable }
func (*EnvironmentStore) Delete(string) error  { return ErrStoreUnavailable }

// Retrieve matches an empty username or one equal to INSTAGRAM_LOGIN.
func (*EnvironmentStore) Retrieve(username string) (*Account, error) {
	login, pass := os.Getenv(LoginEnv), os.Getenv(PasswordEnv)
	if login == "" || pass == "" || (username != "" && username != login) {
		return nil, ErrCredentialsNotFound
	}
	return &Account{Username: login, Password: pass, LastModified: time.Now()}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	if a, err := e.Retrieve(""); err == nil {
		return []*Account{a}, nil
	}
	return nil, nil
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
