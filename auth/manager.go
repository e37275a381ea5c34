package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// RefreshBuffer is how long before expiry a token is proactively renewed.
const RefreshBuffer = 300 * time.Second

// Refresher renews tokens and resolves their workspace. *OAuthClient
// implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, accessToken string) (Identity, error)
}

// RefreshObserver is notified around proactive refreshes.
type RefreshObserver interface {
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
}

// Manager hands out valid access tokens, refreshing them before they expire.
// Refreshes are serialized so a rotated refresh token is never reused.
type Manager struct {
	store     *Store
	refresher Refresher
	observer  RefreshObserver
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithRefreshObserver reports refresh progress to o.
func WithRefreshObserver(o RefreshObserver) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager over store that refreshes through refresher.
func NewManager(store *Store, refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NeedsRefresh reports whether creds are within RefreshBuffer of expiry.
func NeedsRefresh(creds *Credentials, now time.Time) bool {
	return now.Unix() >= creds.ExpiresAt-int64(RefreshBuffer/time.Second)
}

// Token returns a valid access token. It fails with ErrNotLoggedIn when no
// session is stored and with ErrSessionExpired when the refresh token was
// rejected.
func (m *Manager) Token(ctx context.Context) (string, error) {
	creds, err := m.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// Credentials returns the stored session, refreshed first if it is near expiry.
func (m *Manager) Credentials(ctx context.Context) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-read under the lock: another process or goroutine may have rotated
	// the tokens since the last call.
	creds, err := m.store.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if !NeedsRefresh(creds, m.now()) {
		return creds, nil
	}
	return m.refresh(ctx, creds)
}

func (m *Manager) refresh(ctx context.Context, old *Credentials) (*Credentials, error) {
	m.logger.Debug("refreshing access token", "expires_at", old.ExpiresAt)
	if m.observer != nil {
		m.observer.Refreshing()
	}

	tok, err := m.refresher.Refresh(ctx, old.RefreshToken)
	if err != nil {
		if m.observer != nil {
			m.observer.RefreshFailed(err)
		}
		var exErr *ExchangeError
		if errors.As(err, &exErr) && exErr.Unauthorized() {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	creds := &Credentials{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     expiresAt(tok, m.now()),
		WorkspaceID:   old.WorkspaceID,
		WorkspaceName: old.WorkspaceName,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = old.RefreshToken
	}

	if id, err := m.refresher.FetchIdentity(ctx, tok.AccessToken); err != nil {
		m.logger.Warn("keeping previous workspace after userinfo failure", "error", err)
	} else {
		if id.WorkspaceID != "" {
			creds.WorkspaceID = id.WorkspaceID
		}
		if id.WorkspaceName != "" {
			creds.WorkspaceName = id.WorkspaceName
		}
	}

	if err := m.store.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("save refreshed credentials: %w", err)
	}
	if m.observer != nil {
		m.observer.RefreshOK()
	}
	return creds, nil
}
