package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the hosted API.
const DefaultBaseURL = "https://api.dub.co"

const defaultTimeout = 30 * time.Second

// A 429 is retried maxRetries times, waiting defaultRetryDelay before the
// first retry and doubling after that: 1s, 2s, 4s.
const (
	maxRetries        = 3
	defaultRetryDelay = 1 * time.Second
)

// TokenSource supplies a valid access token before every request.
// *auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RetryFunc is called before waiting ahead of a retry.
type RetryFunc func(attempt int, wait time.Duration)

// Client executes authenticated API requests, retrying rate-limited ones on a
// fixed schedule.
type Client struct {
	baseURL    *url.URL
	tokens     TokenSource
	base       *http.Client
	userAgent  string
	logger     *slog.Logger
	retryDelay time.Duration
	onRetry    RetryFunc

	mu        sync.Mutex
	authed    *http.Client
	retrier   *retry.Client
	lastToken string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(strings.TrimRight(raw, "/")); err == nil {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its transport carries
// the bearer-authenticated requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryDelay sets the wait before the first rate-limit retry. Later
// waits double it, up to four times its value.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithRetryNotify reports each rate-limit retry.
func WithRetryNotify(fn RetryFunc) Option {
	return func(c *Client) { c.onRetry = fn }
}

// NewClient returns a Client that authenticates through tokens.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: base,
		tokens:  tokens,
		base: &http.Client{
			Timeout:   defaultTimeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		logger:     slog.Default(),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authed != nil {
		c.authed.CloseIdleConnections()
		c.authed = nil
		c.retrier = nil
	}
	c.base.CloseIdleConnections()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPatch, path, nil, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, query, nil)
}

// Do sends a request and returns the raw JSON response body, which is nil for
// 204 and empty responses. A 429 is retried up to three times and surfaces as
// ErrRateLimitExceeded once exhausted; any other status >= 400 is returned
// as an *APIError without retry.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	rc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, c.endpoint(path, query), payload)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	logger := c.logger.With("request_id", reqID, "method", method, "path", path)

	resp, err := rc.DoWithContext(ctx, req)
	if resp == nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) && retryErr.LastErr != nil {
			err = retryErr.LastErr
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, readErr)
	}
	logger.Debug("api response", "status", resp.StatusCode)

	out := classify(resp.StatusCode, respBody)
	switch out.kind {
	case outcomeSuccess:
		return out.body, nil
	case outcomeFatal:
		return nil, out.err
	}
	return nil, fmt.Errorf("%w: %s %s still throttled after %d attempts",
		ErrRateLimitExceeded, method, path, maxRetries+1)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// client returns a retrying client carrying the current access token,
// rebuilding it only when the token changed since the last request.
func (c *Client) client(ctx context.Context) (*retry.Client, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retrier != nil && token == c.lastToken {
		return c.retrier, nil
	}
	if c.authed != nil {
		c.authed.CloseIdleConnections()
	}

	transport := c.base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	base := &http.Client{
		Timeout:       c.base.Timeout,
		Transport:     rewindBody{next: transport},
		CheckRedirect: c.base.CheckRedirect,
		Jar:           c.base.Jar,
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), src)
	authed.Timeout = c.base.Timeout

	retrier, err := retry.NewClient(
		retry.WithHTTPClient(authed),
		retry.WithMaxRetries(maxRetries),
		retry.WithInitialRetryDelay(c.retryDelay),
		retry.WithRetryDelayMultiple(2),
		retry.WithMaxRetryDelay(4*c.retryDelay),
		retry.WithJitter(false),
		retry.WithRespectRetryAfter(false),
		retry.WithRetryableChecker(rateLimited),
		retry.WithOnRetry(c.notifyRetry),
		c.retryLogging(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	c.authed = authed
	c.retrier = retrier
	c.lastToken = token
	return retrier, nil
}

// retryLogging forwards the retry client's own logs only at debug level;
// rate-limit progress is otherwise reported through onRetry.
func (c *Client) retryLogging(ctx context.Context) retry.Option {
	if c.logger.Enabled(ctx, slog.LevelDebug) {
		return retry.WithLogger(retry.NewSlogAdapter(c.logger))
	}
	return retry.WithNoLogging()
}

func (c *Client) notifyRetry(info retry.RetryInfo) {
	c.logger.Debug("rate limited, retrying", "attempt", info.Attempt, "wait", info.Delay)
	if c.onRetry != nil {
		c.onRetry(info.Attempt, info.Delay)
	}
}

// rateLimited retries 429 responses only. Transport errors and every other
// status go straight back to the caller.
func rateLimited(err error, resp *http.Response) bool {
	return err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, payload []byte) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// rewindBody gives every attempt a fresh copy of the request body. Retries
// reuse the original request, whose body the previous attempt consumed.
type rewindBody struct {
	next http.RoundTripper
}

func (t rewindBody) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.GetBody == nil || req.Body == nil || req.Body == http.NoBody {
		return t.next.RoundTrip(req)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	req.Body.Close()
	r2 := req.Clone(req.Context())
	r2.Body = body
	return t.next.RoundTrip(r2)
}

func (t rewindBody) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.next.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeFatal
)

type outcome struct {
	kind outcomeKind
	body json.RawMessage
	err  error
}

// classify maps a response onto the retry state machine.
func classify(status int, body []byte) outcome {
	switch {
	case status == http.StatusTooManyRequests:
		return outcome{kind: outcomeRetry}
	case status >= http.StatusBadRequest:
		return outcome{kind: outcomeFatal, err: parseAPIError(status, body)}
	case status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0:
		return outcome{kind: outcomeSuccess}
	case !json.Valid(body):
		return outcome{kind: outcomeFatal, err: fmt.Errorf("invalid JSON in %d response", status)}
	default:
		return outcome{kind: outcomeSuccess, body: body}
	}
}
