package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Endpoints are the remote OAuth URLs.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
}

// DefaultEndpoints points at the hosted service.
var DefaultEndpoints = Endpoints{
	AuthorizeURL: "https://app.dub.co/oauth/authorize",
	TokenURL:     "https://api.dub.co/oauth/token",
	UserInfoURL:  "https://api.dub.co/oauth/userinfo",
}

// Scopes requested by the CLI.
var Scopes = []string{"links.read", "links.write", "tags.read", "user.read"}

// defaultTokenLifetime applies when the token response omits expires_in.
const defaultTokenLifetime = 7200 * time.Second

// Timeout configuration for the OAuth endpoints
const (
	tokenExchangeTimeout = 30 * time.Second
	refreshTokenTimeout  = 30 * time.Second
	userInfoTimeout      = 30 * time.Second
)

// Identity is the workspace a token is bound to.
type Identity struct {
	WorkspaceID   string
	WorkspaceName string
}

// OAuthClient talks to the token and userinfo endpoints. Every call is a
// single attempt: auth failures are never retried.
type OAuthClient struct {
	clientID    string
	redirectURL string
	endpoints   Endpoints
	httpClient  *http.Client
}

// NewOAuthClient builds a client for clientID. redirectURL must match the one
// used in the authorization request; it may be empty for refresh-only use.
// A nil httpClient uses http.DefaultClient.
func NewOAuthClient(clientID, redirectURL string, endpoints Endpoints, httpClient *http.Client) *OAuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthClient{
		clientID:    clientID,
		redirectURL: redirectURL,
		endpoints:   endpoints,
		httpClient:  httpClient,
	}
}

func (c *OAuthClient) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		RedirectURL: c.redirectURL,
		Scopes:      Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.endpoints.AuthorizeURL,
			TokenURL: c.endpoints.TokenURL,
			// Public client: client_id goes in the form, and auto-detection
			// would issue a second request on failure.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL builds the browser authorization URL for the given PKCE parameters.
func (c *OAuthClient) AuthCodeURL(p PKCE) string {
	return c.config().AuthCodeURL(
		p.State,
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code for a token pair.
func (c *OAuthClient) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	tok, err := c.config().Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, exchangeError("exchange", err)
	}
	if err := validateToken(tok); err != nil {
		return nil, &ExchangeError{Op: "exchange", Err: err}
	}
	return tok, nil
}

// Refresh trades a refresh token for a new token pair. A 401 from the server
// surfaces as an *ExchangeError whose Unauthorized method reports true.
// Without a client ID it fails with ErrNotConfigured before any request.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if c.clientID == "" {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, refreshTokenTimeout)
	defer cancel()

	src := c.config().TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, exchangeError("refresh", err)
	}
	if err := validateToken(tok); err != nil {
		return nil, &ExchangeError{Op: "refresh", Err: err}
	}
	return tok, nil
}

// FetchIdentity returns the workspace the access token belongs to.
func (c *OAuthClient) FetchIdentity(ctx context.Context, accessToken string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, userInfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.UserInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, &ExchangeError{Op: "userinfo", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Identity{}, &ExchangeError{Op: "userinfo", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Identity{}, &ExchangeError{
			Op:         "userinfo",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var info struct {
		Workspace struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"workspace"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, &ExchangeError{Op: "userinfo", Err: fmt.Errorf("parse response: %w", err)}
	}
	return Identity{WorkspaceID: info.Workspace.ID, WorkspaceName: info.Workspace.Name}, nil
}

func (c *OAuthClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func exchangeError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return &ExchangeError{
			Op:         op,
			StatusCode: rErr.Response.StatusCode,
			Body:       string(rErr.Body),
			Err:        err,
		}
	}
	return &ExchangeError{Op: op, Err: err}
}

// validateToken checks the fields the CLI relies on.
func validateToken(tok *oauth2.Token) error {
	if tok.AccessToken == "" {
		return errors.New("access_token is empty")
	}
	if tok.ExpiresIn < 0 {
		return fmt.Errorf("expires_in must not be negative, got: %d", tok.ExpiresIn)
	}
	// Token type is optional in OAuth 2.0, but if present, should be Bearer
	if tt := tok.TokenType; tt != "" && tt != "Bearer" && tt != "bearer" {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", tt)
	}
	return nil
}

// expiresAt converts the token expiry to unix seconds, defaulting to
// defaultTokenLifetime from now when the server sent no lifetime.
func expiresAt(tok *oauth2.Token, now time.Time) int64 {
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second).Unix()
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry.Unix()
	}
	return now.Add(defaultTokenLifetime).Unix()
}
