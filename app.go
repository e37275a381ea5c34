package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/cli/browser"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/auth"
	"github.com/metcalfc/dubco/tui"
)

// app carries the process-wide state shared by every command: the standard
// streams, the resolved configuration and the hooks tests replace.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	lines  *bufio.Reader // line reader over stdin for prompts

	flags  rootFlags
	cfg    *config
	logger *slog.Logger

	isTTY       func() bool
	openBrowser func(url string) error
	httpClient  *http.Client
	retryDelay  time.Duration
	now         func() time.Time
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		lines:       bufio.NewReader(stdin),
		logger:      newLogger(stderr, false),
		isTTY:       isTTY,
		openBrowser: browser.OpenURL,
		now:         time.Now,
	}
}

// isTTY reports whether stderr is an interactive terminal.
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	return term.IsTerminal(os.Stderr.Fd())
}

// init resolves the configuration once flags are parsed.
func (a *app) init() error {
	cfg, err := loadConfig(a.flags, a.stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.Verbose)
	a.logger.Debug("configuration loaded",
		"config_dir", cfg.ConfigDir,
		"api_url", cfg.APIURL,
		"auth_url", cfg.AuthURL,
		"callback_port", cfg.CallbackPort,
	)
	return nil
}

func (a *app) store() *auth.Store {
	return auth.NewStore(a.cfg.ConfigDir)
}

// clientID returns the per-invocation override, else the stored client ID.
func (a *app) clientID(store *auth.Store) string {
	if a.cfg.ClientID != "" {
		return a.cfg.ClientID
	}
	id, err := store.ClientID()
	if err != nil {
		return ""
	}
	return id
}

func redirectURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// prompt writes question to stderr and reads one trimmed line from stdin.
func (a *app) prompt(question string) (string, error) {
	fmt.Fprint(a.stderr, question)
	line, err := a.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; anything but y/yes is no.
func (a *app) confirm(question string) (bool, error) {
	answer, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// session wires the stored credentials, the token manager and the API client
// for one command. Close releases the client's connections.
type session struct {
	store  *auth.Store
	tokens *auth.Manager
	client *api.Client
}

// openSession builds a session whose refresh and rate-limit progress goes to d.
func (a *app) openSession(d tui.Displayer) *session {
	store := a.store()
	oauth := auth.NewOAuthClient(a.clientID(store), redirectURL(a.cfg.CallbackPort), a.cfg.Endpoints(), a.httpClient)
	tokens := auth.NewManager(store, oauth,
		auth.WithRefreshObserver(d),
		auth.WithLogger(a.logger),
	)

	opts := []api.Option{
		api.WithBaseURL(a.cfg.APIURL),
		api.WithUserAgent("dub/" + version),
		api.WithLogger(a.logger),
		api.WithRetryNotify(d.RateLimited),
	}
	if a.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(a.httpClient))
	}
	if a.retryDelay > 0 {
		opts = append(opts, api.WithRetryDelay(a.retryDelay))
	}

	return &session{
		store:  store,
		tokens: tokens,
		client: api.NewClient(tokens, opts...),
	}
}

// authedSession opens a session and makes sure a usable token exists before
// any request is sent, so a missing login fails fast instead of per item.
func (a *app) authedSession(ctx context.Context, d tui.Displayer) (*session, error) {
	s := a.openSession(d)
	if _, err := s.tokens.Token(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	s.client.Close()
}

// progress returns the displayer for non-interactive commands: refresh and
// rate-limit notices on stderr, keeping stdout clean for pipes.
func (a *app) progress() tui.Displayer {
	return tui.NewPlainDisplayer(a.stderr)
}
