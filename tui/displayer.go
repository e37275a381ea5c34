package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/metcalfc/dubco/auth"
)

// Displayer abstracts all progress output from login, token refresh and
// rate-limit retries.
type Displayer interface {
	auth.LoginObserver
	auth.RefreshObserver
	Banner()
	RateLimited(attempt int, wait time.Duration)
	LoginSuccess(workspace string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Dub.co Login ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) AuthURLReady(authURL, redirectURL string) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "Please open this link to authorize:\n%s\n", authURL)
	fmt.Fprintf(p.w, "\nListening for the callback on %s\n", redirectURL)
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) BrowserOpenFailed(err error) {
	fmt.Fprintf(p.w, "Could not open a browser (%v); open the link above manually.\n", err)
}

func (p *PlainDisplayer) WaitingForCallback(deadline time.Time) {
	fmt.Fprintf(p.w, "Waiting for authorization (up to %s)...\n",
		time.Until(deadline).Round(time.Second))
}

func (p *PlainDisplayer) ExchangingCode() {
	fmt.Fprintln(p.w, "Authorization received, exchanging code...")
}

func (p *PlainDisplayer) TokenSaved(path string) {
	fmt.Fprintf(p.w, "Credentials saved to %s\n", path)
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) RateLimited(attempt int, wait time.Duration) {
	fmt.Fprintf(p.w, "Rate limited, retrying in %s (attempt %d)...\n", wait, attempt)
}

func (p *PlainDisplayer) LoginSuccess(workspace string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	if workspace != "" {
		fmt.Fprintf(p.w, "Logged in to workspace: %s\n", workspace)
	} else {
		fmt.Fprintln(p.w, "Logged in.")
	}
	fmt.Fprintf(p.w, "Token expires in: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests and for quiet output.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                                {}
func (NoopDisplayer) AuthURLReady(_, _ string)               {}
func (NoopDisplayer) BrowserOpenFailed(_ error)              {}
func (NoopDisplayer) WaitingForCallback(_ time.Time)         {}
func (NoopDisplayer) ExchangingCode()                        {}
func (NoopDisplayer) TokenSaved(_ string)                    {}
func (NoopDisplayer) Refreshing()                            {}
func (NoopDisplayer) RefreshOK()                             {}
func (NoopDisplayer) RefreshFailed(_ error)                  {}
func (NoopDisplayer) RateLimited(_ int, _ time.Duration)     {}
func (NoopDisplayer) LoginSuccess(_ string, _ time.Duration) {}
func (NoopDisplayer) Fatal(_ error)                          {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) AuthURLReady(authURL, redirectURL string) {
	t.p.Send(MsgAuthURLReady{AuthURL: authURL, RedirectURL: redirectURL})
}

func (t *ProgramDisplayer) BrowserOpenFailed(err error) {
	t.p.Send(MsgBrowserOpenFailed{Err: err})
}

func (t *ProgramDisplayer) WaitingForCallback(deadline time.Time) {
	t.p.Send(MsgWaitingForCallback{Deadline: deadline})
}

func (t *ProgramDisplayer) ExchangingCode() {
	t.p.Send(MsgExchangingCode{})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) RateLimited(attempt int, wait time.Duration) {
	t.p.Send(MsgRateLimited{Attempt: attempt, Wait: wait})
}

func (t *ProgramDisplayer) LoginSuccess(workspace string, expiresIn time.Duration) {
	t.p.Send(MsgLoginSuccess{Workspace: workspace, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
