package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultLoginTimeout bounds the wait for the browser redirect.
const DefaultLoginTimeout = 120 * time.Second

// LoginObserver receives progress events from a LoginFlow.
type LoginObserver interface {
	AuthURLReady(authURL, redirectURL string)
	BrowserOpenFailed(err error)
	WaitingForCallback(deadline time.Time)
	ExchangingCode()
	TokenSaved(path string)
}

// LoginFlow runs the authorization code + PKCE flow against a loopback
// redirect and persists the resulting session.
type LoginFlow struct {
	ClientID   string
	Port       int // 0 picks a free port
	Endpoints  Endpoints
	HTTPClient *http.Client
	Timeout    time.Duration
	Store      *Store

	// OpenBrowser opens the authorization URL. Nil skips the browser and
	// relies on the printed URL.
	OpenBrowser func(url string) error
	Observer    LoginObserver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Run performs the login and returns the saved credentials. Credentials are
// only written after the state check and the token exchange both succeed.
func (f *LoginFlow) Run(ctx context.Context) (*Credentials, error) {
	if f.ClientID == "" {
		return nil, ErrNotConfigured
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := f.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	pkce := NewPKCE()

	listener, err := ListenCallback(f.Port)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	client := NewOAuthClient(f.ClientID, listener.RedirectURL(), f.Endpoints, f.HTTPClient)
	authURL := client.AuthCodeURL(pkce)
	obs.AuthURLReady(authURL, listener.RedirectURL())
	logger.Debug("waiting for oauth callback", "port", listener.Port())

	if f.OpenBrowser != nil {
		if err := f.OpenBrowser(authURL); err != nil {
			obs.BrowserOpenFailed(err)
		}
	}

	obs.WaitingForCallback(now().Add(timeout))
	res, err := listener.Await(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, &DeniedError{Reason: res.Error}
	}
	if subtle.ConstantTimeCompare([]byte(res.State), []byte(pkce.State)) != 1 {
		return nil, ErrStateMismatch
	}

	obs.ExchangingCode()
	tok, err := client.Exchange(ctx, res.Code, pkce.Verifier)
	if err != nil {
		return nil, err
	}

	id, err := client.FetchIdentity(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch workspace: %w", err)
	}

	creds := &Credentials{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     expiresAt(tok, now()),
		WorkspaceID:   id.WorkspaceID,
		WorkspaceName: id.WorkspaceName,
	}
	if err := f.Store.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	obs.TokenSaved(f.Store.CredentialsPath())
	return creds, nil
}

type nopObserver struct{}

func (nopObserver) AuthURLReady(string, string)  {}
func (nopObserver) BrowserOpenFailed(error)      {}
func (nopObserver) WaitingForCallback(time.Time) {}
func (nopObserver) ExchangingCode()              {}
func (nopObserver) TokenSaved(string)            {}
