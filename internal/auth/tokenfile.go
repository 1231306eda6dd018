package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// TokenFile holds a saved identity.
type TokenFile struct {
	Token     string    `json:"token"`
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Server    string    `json:"server,omitempty"`
}

// IsExpired returns true if the token has expired (with optional margin).
// A zero expiry never expires.
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "bettermux", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bettermux", "token.json")
}

// Store reads and writes the token file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for path, or the default location when path is "".
func NewStore(path string) *Store {
	if path == "" {
		path = TokenFilePath()
	}
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Save writes tf with owner-only permissions.
func (s *Store) Save(tf *TokenFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Load reads the saved token. A missing file yields ErrNotLoggedIn.
func (s *Store) Load() (*TokenFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return &tf, nil
}

// Delete removes the saved token file. Removing a missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
