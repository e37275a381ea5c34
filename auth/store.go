package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	credentialsFile = "credentials.json"
	settingsFile    = "config.json"

	// ConfigDirEnv overrides the directory holding credentials and settings.
	ConfigDirEnv = "DUBCO_CONFIG_DIR"
)

// Credentials is the persisted OAuth session.
type Credentials struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresAt     int64  `json:"expires_at"` // unix seconds, server-reported
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
}

// ExpiresIn returns the time left until the access token expires.
func (c *Credentials) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(c.ExpiresAt, 0).Sub(now)
}

// Settings holds the user's registered OAuth application.
type Settings struct {
	ClientID string `json:"client_id"`
}

// Store reads and writes the credentials and settings records in a single
// per-user directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir resolves the configuration directory: DUBCO_CONFIG_DIR if set,
// otherwise the platform user config directory joined with "dubco".
func DefaultDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "dubco"), nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// CredentialsPath returns the location of the credentials record.
func (s *Store) CredentialsPath() string {
	return filepath.Join(s.dir, credentialsFile)
}

// SettingsPath returns the location of the settings record.
func (s *Store) SettingsPath() string {
	return filepath.Join(s.dir, settingsFile)
}

// LoadCredentials returns the stored session. A missing or unreadable record
// yields ErrNotLoggedIn.
func (s *Store) LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := readJSON(s.CredentialsPath(), &creds); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	if creds.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	return &creds, nil
}

// SaveCredentials persists creds with owner-only permissions.
func (s *Store) SaveCredentials(ctx context.Context, creds *Credentials) error {
	return s.writeLocked(ctx, s.CredentialsPath(), creds)
}

// ClearCredentials removes the stored session. Clearing an absent session is
// not an error.
func (s *Store) ClearCredentials(ctx context.Context) error {
	path := s.CredentialsPath()
	lock, err := lockFile(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer lock.release()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// ClientID returns the stored OAuth client ID, or ErrNotConfigured.
func (s *Store) ClientID() (string, error) {
	var settings Settings
	if err := readJSON(s.SettingsPath(), &settings); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotConfigured
		}
		return "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if settings.ClientID == "" {
		return "", ErrNotConfigured
	}
	return settings.ClientID, nil
}

// SetClientID stores the OAuth client ID.
func (s *Store) SetClientID(ctx context.Context, clientID string) error {
	return s.writeLocked(ctx, s.SettingsPath(), &Settings{ClientID: clientID})
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeLocked writes v as indented JSON to path through a temp file and an
// atomic rename, holding the sidecar lock for the duration.
func (s *Store) writeLocked(ctx context.Context, path string, v any) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	lock, err := lockFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.release()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	// WriteFile keeps the mode of a pre-existing temp file.
	if err := os.Chmod(tmp, 0o600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to restrict temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
