// Package secret implements the encrypted-at-rest secret store from spec
// §4.3: a single JSON document, a single-writer lock around the
// load-mutate-write cycle, and a decrypted-value cache that registers
// each disclosed value with the masker on first access.
package secret

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/nightlyone/lockfile"
	"github.com/pdk-cli/pdk/internal/errtax"
)

// namePattern is the validation regex from spec §4.3.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const documentVersion = "1.0"

// Masker is the minimal surface the store needs; satisfied by
// *mask.Masker.
type Masker interface {
	RegisterSecret(string)
}

// entry is the on-disk shape of one secret (spec §6.3).
type entry struct {
	EncryptedValue string    `json:"encryptedValue"`
	Algorithm      string    `json:"algorithm"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// document is the single JSON document persisted at <user-home>/.pdk/secrets.json.
type document struct {
	Version string           `json:"version"`
	Secrets map[string]entry `json:"secrets"`
}

// Store is a user-home-scoped, encrypted secret store. The zero value is
// not usable; construct with Open.
type Store struct {
	path string

	mu       sync.Mutex // serializes the in-process load-mutate-write cycle
	cacheMu  sync.RWMutex
	cache    map[string]string // decrypted-value cache, keyed by name
	masker   Masker
}

// Open returns a Store backed by path (typically <home>/.pdk/secrets.json).
func Open(path string, masker Masker) *Store {
	return &Store{path: path, cache: make(map[string]string), masker: masker}
}

// DefaultPath returns <user-home>/.pdk/secrets.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".pdk", "secrets.json"), nil
}

// validateName enforces spec §4.3's name regex.
func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return errtax.Newf(errtax.CodeSecretInvalidName, "invalid secret name %q: must match %s", name, namePattern.String())
	}
	return nil
}

// withLock acquires the cross-process file lock (best-effort: up to 2s of
// retries) around the critical section, in addition to the in-process
// mutex, so two pdk processes don't corrupt secrets.json concurrently.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := s.path + ".lock"
	lf, err := lockfile.New(lockPath)
	if err != nil {
		// Lock path couldn't be constructed (e.g. empty path in tests);
		// fall back to in-process-only serialization.
		return fn()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if lockErr := lf.TryLock(); lockErr == nil {
			defer func() { _ = lf.Unlock() }()
			break
		}
		if time.Now().After(deadline) {
			// Best effort: proceed anyway rather than hang a CLI invocation
			// indefinitely on a stale lock file.
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fn()
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is user-home-scoped, constructed by DefaultPath
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: documentVersion, Secrets: map[string]entry{}}, nil
		}
		return nil, fmt.Errorf("reading secret store: %w", err)
	}
	if len(data) == 0 {
		return &document{Version: documentVersion, Secrets: map[string]entry{}}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing secret store: %w", err)
	}
	if doc.Secrets == nil {
		doc.Secrets = map[string]entry{}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating secret store directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling secret store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing secret store: %w", err)
	}
	// POSIX: enforce owner-only even if the file pre-existed with looser
	// permissions. Windows relies on filesystem ACLs (spec §4.3).
	if runtime.GOOS != "windows" {
		_ = os.Chmod(s.path, 0o600)
	}
	return nil
}

// Set encrypts value and persists it under name, creating or updating the
// entry's timestamps.
func (s *Store) Set(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}

	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}

		ciphertext, err := encrypt([]byte(value))
		if err != nil {
			return fmt.Errorf("encrypting secret %q: %w", name, err)
		}

		now := time.Now().UTC()
		existing, had := doc.Secrets[name]
		createdAt := now
		if had {
			createdAt = existing.CreatedAt
		}
		doc.Secrets[name] = entry{
			EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
			Algorithm:      AlgorithmTag,
			CreatedAt:      createdAt,
			UpdatedAt:      now,
		}

		if err := s.save(doc); err != nil {
			return err
		}

		s.cacheMu.Lock()
		s.cache[name] = value
		s.cacheMu.Unlock()
		if s.masker != nil {
			s.masker.RegisterSecret(value)
		}
		return nil
	})
}

// Get decrypts and returns the value for name, from the in-memory cache
// if this is not the first access this process has made to it.
func (s *Store) Get(name string) (string, error) {
	s.cacheMu.RLock()
	if v, ok := s.cache[name]; ok {
		s.cacheMu.RUnlock()
		return v, nil
	}
	s.cacheMu.RUnlock()

	var value string
	err := s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		e, ok := doc.Secrets[name]
		if !ok {
			return errtax.Newf(errtax.CodeSecretNotFound, "secret %q not found", name)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(e.EncryptedValue)
		if err != nil {
			return errtax.Wrap(errtax.CodeSecretDecryptFailed, err, "secret store is corrupted").
				WithSuggestions("re-set the secret with 'pdk secret set " + name + "'")
		}
		plaintext, err := decrypt(ciphertext)
		if err != nil {
			return errtax.Wrap(errtax.CodeSecretDecryptFailed, err, fmt.Sprintf("failed to decrypt secret %q", name)).
				WithSuggestions(
					"secrets encrypted on another machine cannot be decrypted here",
					"re-set the secret with 'pdk secret set "+name+"'",
				)
		}
		value = string(plaintext)
		zero(plaintext)
		return nil
	})
	if err != nil {
		return "", err
	}

	s.cacheMu.Lock()
	s.cache[name] = value
	s.cacheMu.Unlock()
	if s.masker != nil {
		s.masker.RegisterSecret(value)
	}
	return value, nil
}

// Delete removes name from the store and its cached plaintext.
func (s *Store) Delete(name string) error {
	err := s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := doc.Secrets[name]; !ok {
			return errtax.Newf(errtax.CodeSecretNotFound, "secret %q not found", name)
		}
		delete(doc.Secrets, name)
		return s.save(doc)
	})
	if err != nil {
		return err
	}
	s.cacheMu.Lock()
	delete(s.cache, name)
	s.cacheMu.Unlock()
	return nil
}

// Exists reports whether name is present, without decrypting it.
func (s *Store) Exists(name string) (bool, error) {
	var found bool
	err := s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		_, found = doc.Secrets[name]
		return nil
	})
	return found, err
}

// List returns every secret name, in a stable sorted order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		for name := range doc.Secrets {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortStrings(names)
	return names, nil
}

// GetAll decrypts and returns every secret. Used by the variable resolver
// at startup (spec §4.1 LoadSecrets).
func (s *Store) GetAll() (map[string]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
