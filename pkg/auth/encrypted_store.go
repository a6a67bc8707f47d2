package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase file.
const PassphraseEnv = "IGTAGS_PASSPHRASE"

const (
	saltLen      = 32
	keyLen       = 32
	kdfRounds    = 100000
	vaultVersion = 1
)

// EncryptedFileStore keeps accounts in one AES-GCM encrypted file. The key
// is derived with PBKDF2 from a passphrase taken from IGTAGS_PASSPHRASE or
// from a .passphrase file generated next to the store.
type EncryptedFileStore struct {
	mu         sync.RWMutex
	path       string
	passphrase string
}

// vault is the on-disk JSON form. Byte fields are base64 encoded by
// encoding/json.
type vault struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"encrypted"`
	Modified time.Time `json:"modified"`
}

type accountSet map[string]Account

func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	pass, err := passphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(set accountSet) error {
		set[account.Username] = *account
		return nil
	})
}

func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	set, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	a, ok := set[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (e *EncryptedFileStore) List() ([]*Account, error) {
	set, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(set))
	for _, a := range set {
		out = append(out, &a)
	}
	return out, nil
}

// Delete drops username. The file goes with the last account.
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(set accountSet) error {
		if _, ok := set[username]; !ok {
			return ErrCredentialsNotFound
		}
		delete(set, username)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(username string) bool {
	a, err := e.Retrieve(username)
	return err == nil && a != nil
}

// snapshot reads the current accounts. A missing file is an empty set.
func (e *EncryptedFileStore) snapshot() (accountSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set, _, err := e.read()
	if errors.Is(err, os.ErrNotExist) {
		return accountSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return set, nil
}

// update applies fn to the stored accounts and writes the result back.
func (e *EncryptedFileStore) update(fn func(accountSet) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, salt, err := e.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		set = accountSet{}
	case err != nil:
		return fmt.Errorf("failed to load existing data: %w", err)
	}

	if err := fn(set); err != nil {
		return err
	}
	if len(set) == 0 {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return e.write(set, salt)
}

func (e *EncryptedFileStore) read() (accountSet, []byte, error) {
	raw, err := os.ReadFile(e.path)
	if err != nil {
		return nil, nil, err
	}

	var v vault
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	aead, err := e.aead(v.Salt)
	if err != nil {
		return nil, nil, err
	}
	n := aead.NonceSize()
	if len(v.Sealed) < n {
		return nil, nil, errors.New("ciphertext too short")
	}
	plain, err := aead.Open(nil, v.Sealed[:n], v.Sealed[n:], nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
	}

	var set accountSet
	if err := json.Unmarshal(plain, &set); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return set, v.Salt, nil
}

// write seals set and atomically replaces the file. A nil salt starts a
// new one.
func (e *EncryptedFileStore) write(set accountSet, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	aead, err := e.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(vault{
		Version:  vaultVersion,
		Salt:     salt,
		Sealed:   aead.Seal(nonce, nonce, plain, nil),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(e.passphrase), salt, kdfRounds, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// passphrase returns IGTAGS_PASSPHRASE, or the .passphrase file in dir,
// generating one on first use.
func passphrase(dir string) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}

	file := filepath.Join(dir, ".passphrase")
	if b, err := os.ReadFile(file); err == nil && len(b) > 0 {
		return string(b), nil
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	p := base64.URLEncoding.EncodeToString(seed)
	if err := os.WriteFile(file, []byte(p), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return p, nil
}
