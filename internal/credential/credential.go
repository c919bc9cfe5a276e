// Package credential implements the encrypted credential vault (A2): a
// per-domain username/password store encrypted at rest with
// nacl/secretbox, backed by a 0600 keyfile, plus a non-secret audit log.
package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	dirPerm   = 0o700
	filePerm  = 0o600
)

// Credential is one stored domain's login material.
type Credential struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	SavedAt  time.Time `json:"saved_at"`
}

// Site is a non-sensitive summary of a stored credential, safe to list.
type Site struct {
	Domain   string    `json:"domain"`
	Username string    `json:"username"`
	SavedAt  time.Time `json:"saved_at"`
}

// Manager is the encrypted credential vault.
type Manager struct {
	mu        sync.Mutex
	dir       string
	keyFile   string
	vaultFile string
	auditFile *os.File
	audit     zerolog.Logger
	key       [keySize]byte
	log       zerolog.Logger
}

// New opens (or initializes) a vault rooted at dir. dir and its keyfile
// are created with restrictive permissions if they don't yet exist. The
// audit trail is a structured zerolog event stream written to
// auth_audit.log: action + domain only, never credential material.
func New(dir string, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("credential: create dir: %w", err)
	}
	auditFile, err := os.OpenFile(filepath.Join(dir, "auth_audit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("credential: open audit log: %w", err)
	}
	m := &Manager{
		dir:       dir,
		keyFile:   filepath.Join(dir, ".keyfile"),
		vaultFile: filepath.Join(dir, "vault.enc"),
		auditFile: auditFile,
		audit:     zerolog.New(auditFile).With().Timestamp().Str("component", "credential_audit").Logger(),
		log:       logger.With().Str("component", "credential").Logger(),
	}
	key, err := m.loadOrCreateKey()
	if err != nil {
		auditFile.Close()
		return nil, err
	}
	m.key = key
	return m, nil
}

// Close releases the audit log file handle.
func (m *Manager) Close() error {
	return m.auditFile.Close()
}

func (m *Manager) loadOrCreateKey() ([keySize]byte, error) {
	var key [keySize]byte
	data, err := os.ReadFile(m.keyFile)
	if err == nil && len(data) == keySize {
		copy(key[:], data)
		return key, nil
	}
	if _, genErr := rand.Read(key[:]); genErr != nil {
		return key, fmt.Errorf("credential: generate key: %w", genErr)
	}
	if err := os.WriteFile(m.keyFile, key[:], filePerm); err != nil {
		return key, fmt.Errorf("credential: write keyfile: %w", err)
	}
	m.auditEvent("key_created", "", nil)
	return key, nil
}

// auditEvent emits one structured audit event: action and domain only,
// never username/password/ciphertext. err, if non-nil, is recorded and
// the event is logged at warn level.
func (m *Manager) auditEvent(action, domain string, err error) {
	ev := m.audit.Info()
	if err != nil {
		ev = m.audit.Warn().Err(err)
	}
	ev = ev.Str("action", action)
	if domain != "" {
		ev = ev.Str("domain", domain)
	}
	ev.Msg("credential audit event")
}

type vault map[string]Credential

func (m *Manager) loadVault() (vault, error) {
	data, err := os.ReadFile(m.vaultFile)
	if errors.Is(err, os.ErrNotExist) {
		return vault{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential: read vault: %w", err)
	}
	if len(data) < nonceSize {
		return nil, errors.New("credential: vault file corrupt")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &m.key)
	if !ok {
		return nil, errors.New("credential: vault decryption failed")
	}
	var v vault
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("credential: parse vault: %w", err)
	}
	return v, nil
}

func (m *Manager) saveVault(v vault) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("credential: marshal vault: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("credential: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &m.key)
	if err := os.WriteFile(m.vaultFile, sealed, filePerm); err != nil {
		return fmt.Errorf("credential: write vault: %w", err)
	}
	return nil
}

// Save encrypts and persists a credential for domain.
func (m *Manager) Save(domain, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.loadVault()
	if err != nil {
		m.auditEvent("save_failed", domain, err)
		return err
	}
	v[domain] = Credential{Username: username, Password: password, SavedAt: time.Now()}
	if err := m.saveVault(v); err != nil {
		m.auditEvent("save_failed", domain, err)
		return err
	}
	m.auditEvent("credential_saved", domain, nil)
	return nil
}

// Get decrypts and returns the credential for domain, if any.
func (m *Manager) Get(domain string) (Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.loadVault()
	if err != nil {
		m.auditEvent("get_failed", domain, err)
		return Credential{}, false, err
	}
	c, ok := v[domain]
	if ok {
		m.auditEvent("credential_accessed", domain, nil)
	}
	return c, ok, nil
}

// List returns a non-sensitive summary of every stored domain.
func (m *Manager) List() ([]Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.loadVault()
	if err != nil {
		return nil, err
	}
	sites := make([]Site, 0, len(v))
	for domain, c := range v {
		sites = append(sites, Site{Domain: domain, Username: c.Username, SavedAt: c.SavedAt})
	}
	return sites, nil
}

// Delete removes the stored credential for domain, if present.
func (m *Manager) Delete(domain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.loadVault()
	if err != nil {
		return false, err
	}
	if _, ok := v[domain]; !ok {
		return false, nil
	}
	delete(v, domain)
	if err := m.saveVault(v); err != nil {
		m.auditEvent("delete_failed", domain, err)
		return false, err
	}
	m.auditEvent("credential_deleted", domain, nil)
	return true, nil
}

// ClearAll deletes every stored credential.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.saveVault(vault{}); err != nil {
		m.auditEvent("clear_all_failed", "", err)
		return err
	}
	m.auditEvent("all_credentials_cleared", "", nil)
	return nil
}

// Has reports whether a credential is stored for domain.
func (m *Manager) Has(domain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.loadVault()
	if err != nil {
		return false, err
	}
	_, ok := v[domain]
	return ok, nil
}
