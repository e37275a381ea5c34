package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/auth"
	"github.com/metcalfc/dubco/tui"
)

const oauthAppsURL = "https://app.dub.co/settings/oauth-apps"

type loginOptions struct {
	clientID  string
	port      int
	noBrowser bool
}

func newLoginCmd(a *app) *cobra.Command {
	var opts loginOptions
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Dub.co via OAuth",
		Long: `Log in to Dub.co with the OAuth authorization code flow.

The first login asks for the Client ID of an OAuth app in your workspace.
It is stored and reused until you pass --client-id again.`,
		Args: inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("port") {
				opts.port = a.cfg.CallbackPort
			} else if err := checkPort(opts.port); err != nil {
				return invalidInput("invalid --port: %v", err)
			}
			return a.login(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.clientID, "client-id", "c", "", "OAuth client ID (prompted for on first login)")
	fs.IntVar(&opts.port, "port", auth.DefaultCallbackPort, "local port for the OAuth callback (or set DUBCO_CALLBACK_PORT)")
	fs.BoolVar(&opts.noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	return cmd
}

func (a *app) login(ctx context.Context, opts loginOptions) error {
	store := a.store()

	clientID, err := a.resolveClientID(ctx, store, opts)
	if err != nil {
		return err
	}

	flow := &auth.LoginFlow{
		ClientID:   clientID,
		Port:       opts.port,
		Endpoints:  a.cfg.Endpoints(),
		HTTPClient: a.httpClient,
		Store:      store,
		Logger:     a.logger,
		Now:        a.now,
	}
	if !opts.noBrowser {
		flow.OpenBrowser = a.openBrowser
	}

	if !a.isTTY() {
		d := tui.NewPlainDisplayer(a.stderr)
		return runLogin(ctx, flow, d)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries. Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(a.stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(a.stderr, "TUI error: %v\n", err)
		}
	}()

	runErr := runLogin(ctx, flow, tui.NewProgramDisplayer(p))
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return runErr
}

// runLogin drives flow, reporting progress and the outcome to d.
func runLogin(ctx context.Context, flow *auth.LoginFlow, d tui.Displayer) error {
	d.Banner()
	flow.Observer = d

	creds, err := flow.Run(ctx)
	if err != nil {
		d.Fatal(err)
		return withExit(loginExitCode(err), err)
	}
	d.LoginSuccess(creds.WorkspaceName, creds.ExpiresIn(flow.Now()))
	return nil
}

// loginExitCode classifies a failed login: a busy port or a network failure
// is a general error, everything else is an authentication failure.
func loginExitCode(err error) int {
	var bindErr *auth.BindError
	switch {
	case errors.As(err, &bindErr), errors.Is(err, context.Canceled):
		return exitFailure
	}
	return exitAuth
}

// resolveClientID picks the OAuth client ID: --client-id (stored for later
// logins), then DUBCO_CLIENT_ID, then the stored one, then a prompt.
func (a *app) resolveClientID(ctx context.Context, store *auth.Store, opts loginOptions) (string, error) {
	if opts.clientID != "" {
		if err := store.SetClientID(ctx, opts.clientID); err != nil {
			return "", fmt.Errorf("save client ID: %w", err)
		}
		return opts.clientID, nil
	}
	if id := a.clientID(store); id != "" {
		return id, nil
	}

	fmt.Fprintln(a.stderr, "Welcome to dub! Let's set up authentication.")
	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, "To use this CLI, you need to create an OAuth app in your Dub workspace:")
	fmt.Fprintln(a.stderr)
	fmt.Fprintf(a.stderr, "  1. Go to: %s\n", oauthAppsURL)
	fmt.Fprintln(a.stderr, "  2. Click Create OAuth App")
	fmt.Fprintln(a.stderr, "  3. Fill in:")
	fmt.Fprintln(a.stderr, "     - Name: dubco-cli (or any name you prefer)")
	fmt.Fprintf(a.stderr, "     - Redirect URI: %s\n", redirectURL(opts.port))
	fmt.Fprintln(a.stderr, "  4. Copy the Client ID")
	fmt.Fprintln(a.stderr)

	id, err := a.prompt("Paste your Client ID: ")
	if err != nil {
		return "", withExit(exitInput, err)
	}
	if id == "" {
		return "", invalidInput("client ID cannot be empty")
	}
	if err := store.SetClientID(ctx, id); err != nil {
		return "", fmt.Errorf("save client ID: %w", err)
	}
	return id, nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear stored credentials",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := a.store()
			if _, err := store.LoadCredentials(); errors.Is(err, auth.ErrNotLoggedIn) {
				fmt.Fprintln(a.stdout, "Not logged in.")
				return nil
			}
			if err := store.ClearCredentials(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Logged out successfully.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current authentication status",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			store := a.store()
			creds, err := store.LoadCredentials()
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Workspace: %s\n", creds.WorkspaceName)
			fmt.Fprintf(a.stdout, "Workspace ID: %s\n", creds.WorkspaceID)
			if left := creds.ExpiresIn(a.now()); left > 0 {
				fmt.Fprintf(a.stdout, "Token expires in: %s\n", left.Round(time.Second))
			} else {
				fmt.Fprintln(a.stdout, "Token expired (refreshed on next use)")
			}
			if id := a.clientID(store); id != "" {
				fmt.Fprintf(a.stdout, "Client ID: %s\n", abbreviate(id, 20))
			}
			return nil
		},
	}
}

// abbreviate keeps the first n bytes of s, marking the cut with "...".
func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
