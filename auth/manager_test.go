package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	calls     atomic.Int32
	rotate    bool
	refreshFn func(refreshToken string) (*oauth2.Token, error)
	identity  Identity
	idErr     error

	mu   sync.Mutex
	seen []string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()
	if f.refreshFn != nil {
		return f.refreshFn(refreshToken)
	}
	tok := &oauth2.Token{AccessToken: "access-new", ExpiresIn: 3600}
	if f.rotate {
		tok.RefreshToken = "refresh-" + string(rune('0'+n))
	}
	return tok, nil
}

func (f *fakeRefresher) FetchIdentity(context.Context, string) (Identity, error) {
	return f.identity, f.idErr
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) Refreshing()         { r.events = append(r.events, "refreshing") }
func (r *recordingObserver) RefreshOK()          { r.events = append(r.events, "ok") }
func (r *recordingObserver) RefreshFailed(error) { r.events = append(r.events, "failed") }

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestManager(t *testing.T, creds *Credentials, r Refresher, now time.Time, opts ...ManagerOption) (*Manager, *Store) {
	t.Helper()
	store := NewStore(t.TempDir())
	if creds != nil {
		require.NoError(t, store.SaveCredentials(context.Background(), creds))
	}
	opts = append([]ManagerOption{WithClock(func() time.Time { return now }), WithLogger(quietLogger)}, opts...)
	return NewManager(store, r, opts...), store
}

func TestManager_NotLoggedIn(t *testing.T) {
	m, _ := newTestManager(t, nil, &fakeRefresher{}, time.Now())
	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_RefreshBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name        string
		expiresIn   int64
		wantRefresh bool
	}{
		{"well before buffer", 3600, false},
		{"301 seconds left", 301, false},
		{"exactly at buffer", 300, true},
		{"299 seconds left", 299, true},
		{"already expired", -10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRefresher{}
			m, _ := newTestManager(t, &Credentials{
				AccessToken:  "access-old",
				RefreshToken: "refresh-old",
				ExpiresAt:    now.Unix() + tt.expiresIn,
			}, r, now)

			tok, err := m.Token(context.Background())
			require.NoError(t, err)

			if tt.wantRefresh {
				assert.Equal(t, int32(1), r.calls.Load())
				assert.Equal(t, "access-new", tok)
			} else {
				assert.Zero(t, r.calls.Load())
				assert.Equal(t, "access-old", tok)
			}
		})
	}
}

func TestManager_RefreshPersists(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &fakeRefresher{rotate: true, identity: Identity{WorkspaceID: "ws_new", WorkspaceName: "New"}}
	obs := &recordingObserver{}
	m, store := newTestManager(t, &Credentials{
		AccessToken:   "access-old",
		RefreshToken:  "refresh-old",
		ExpiresAt:     now.Unix(),
		WorkspaceID:   "ws_old",
		WorkspaceName: "Old",
	}, r, now, WithRefreshObserver(obs))

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	saved, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, &Credentials{
		AccessToken:   "access-new",
		RefreshToken:  "refresh-1",
		ExpiresAt:     now.Unix() + 3600,
		WorkspaceID:   "ws_new",
		WorkspaceName: "New",
	}, saved)
	assert.Equal(t, []string{"refreshing", "ok"}, obs.events)
}

func TestManager_RefreshKeepsWorkspaceWhenIdentityFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &fakeRefresher{idErr: errors.New("userinfo down")}
	m, store := newTestManager(t, &Credentials{
		AccessToken:   "access-old",
		RefreshToken:  "refresh-old",
		ExpiresAt:     now.Unix() + 10,
		WorkspaceID:   "ws_old",
		WorkspaceName: "Old",
	}, r, now)

	creds, err := m.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws_old", creds.WorkspaceID)
	assert.Equal(t, "Old", creds.WorkspaceName)
	assert.Equal(t, "refresh-old", creds.RefreshToken, "unrotated refresh token is kept")

	saved, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, creds, saved)
}

func TestManager_Refresh401IsSessionExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &fakeRefresher{refreshFn: func(string) (*oauth2.Token, error) {
		return nil, &ExchangeError{Op: "refresh", StatusCode: 401, Body: "invalid_grant"}
	}}
	obs := &recordingObserver{}
	m, store := newTestManager(t, &Credentials{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Unix(),
	}, r, now, WithRefreshObserver(obs))

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
	assert.True(t, NeedsLogin(err))
	assert.Equal(t, []string{"refreshing", "failed"}, obs.events)

	// The stale session stays on disk; only logout clears it.
	saved, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "access-old", saved.AccessToken)
}

func TestManager_RefreshWithoutClientID(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	oauth := NewOAuthClient("", "", DefaultEndpoints, nil)
	m, store := newTestManager(t, &Credentials{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Add(10 * time.Second).Unix(),
	}, oauth, now)

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.True(t, NeedsLogin(err))

	saved, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "access-old", saved.AccessToken)
}

func TestManager_RefreshOtherFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &fakeRefresher{refreshFn: func(string) (*oauth2.Token, error) {
		return nil, &ExchangeError{Op: "refresh", StatusCode: 500, Body: "boom"}
	}}
	m, _ := newTestManager(t, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Unix()}, r, now)

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.False(t, NeedsLogin(err))

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, 500, exErr.StatusCode)
}

func TestManager_ConcurrentCallersRefreshOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	// Each refresh token is single-use: a second refresh with an already
	// rotated token is rejected like the real server does.
	var used sync.Map
	r := &fakeRefresher{}
	r.refreshFn = func(refreshToken string) (*oauth2.Token, error) {
		if _, loaded := used.LoadOrStore(refreshToken, true); loaded {
			return nil, &ExchangeError{Op: "refresh", StatusCode: 401}
		}
		time.Sleep(20 * time.Millisecond)
		return &oauth2.Token{AccessToken: "access-new", RefreshToken: "refresh-rotated", ExpiresIn: 3600}, nil
	}
	m, _ := newTestManager(t, &Credentials{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Unix() + 100,
	}, r, now)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			tok, err := m.Token(context.Background())
			if err == nil && tok != "access-new" {
				err = errors.New("unexpected token " + tok)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.False(t, NeedsRefresh(&Credentials{ExpiresAt: 1301}, now))
	assert.True(t, NeedsRefresh(&Credentials{ExpiresAt: 1300}, now))
	assert.True(t, NeedsRefresh(&Credentials{ExpiresAt: 1299}, now))
}
