package tui

import (
	"time"

	"github.com/metcalfc/dubco/api"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgAuthURLReady signals that the authorization URL is ready for the user.
type MsgAuthURLReady struct {
	AuthURL     string
	RedirectURL string
}

// MsgBrowserOpenFailed signals that the browser could not be launched.
type MsgBrowserOpenFailed struct{ Err error }

// MsgWaitingForCallback signals that the loopback listener is waiting.
type MsgWaitingForCallback struct{ Deadline time.Time }

// MsgExchangingCode signals that the authorization code is being exchanged.
type MsgExchangingCode struct{}

// MsgTokenSaved signals that credentials were saved to disk.
type MsgTokenSaved struct{ Path string }

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgRateLimited signals that a request is being retried after a 429.
type MsgRateLimited struct {
	Attempt int
	Wait    time.Duration
}

// MsgLoginSuccess signals successful completion of the login flow.
type MsgLoginSuccess struct {
	Workspace string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }

// linksLoadedMsg carries the result of a browser reload.
type linksLoadedMsg struct {
	links []api.Link
	err   error
}

// linkDeletedMsg carries the result of a browser delete.
type linkDeletedMsg struct {
	link    api.Link
	deleted bool
	err     error
}

// linkUpdatedMsg carries the result of a browser edit.
type linkUpdatedMsg struct {
	link *api.Link
	err  error
}
