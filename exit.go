package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/auth"
)

// Process exit statuses.
const (
	exitOK       = 0
	exitFailure  = 1 // API, network or unexpected failure
	exitInput    = 2 // invalid arguments, flags or input files
	exitAuth     = 3 // login required or authentication failed
	exitNotFound = 4
	exitPartial  = 5 // a bulk operation partly failed
)

// errLinkNotFound is returned when an identifier resolves to no link.
var errLinkNotFound = errors.New("link not found")

// exitError pins an error to an exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func invalidInput(format string, args ...any) error {
	return &exitError{code: exitInput, err: fmt.Errorf(format, args...)}
}

// inputArgs marks positional argument errors as invalid input.
func inputArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withExit(exitInput, fn(cmd, args))
	}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		exitErr  *exitError
		partial  *api.PartialFailureError
		exchange *auth.ExchangeError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.code
	case auth.NeedsLogin(err):
		return exitAuth
	case errors.As(err, &exchange):
		return exitAuth
	case api.StatusCode(err) == http.StatusUnauthorized:
		return exitAuth
	case errors.Is(err, errLinkNotFound), api.IsNotFound(err):
		return exitNotFound
	case errors.As(err, &partial):
		return exitPartial
	default:
		return exitFailure
	}
}

// hint suggests how the user can recover from err.
func hint(err error) string {
	var bindErr *auth.BindError
	switch {
	case errors.As(err, &bindErr):
		return "Another program is using the callback port. Free it or pass --port, and register the matching redirect URI in your OAuth app."
	case errors.Is(err, auth.ErrNotConfigured):
		return "Run `dub login --client-id <id>` to configure your OAuth app."
	case errors.Is(err, auth.ErrAuthTimeout):
		return "No authorization arrived in time. Run `dub login` and approve the request in your browser."
	case errors.Is(err, api.ErrRateLimitExceeded):
		return "The API is rate limiting requests. Wait a minute and try again."
	case errors.Is(err, context.Canceled):
		return ""
	}

	switch exitCode(err) {
	case exitAuth:
		return "Run `dub login` to authenticate."
	case exitInput:
		return "Check the arguments; run `dub <command> --help` for usage."
	case exitNotFound:
		return "Check the link ID, or pass --domain when looking up by key."
	}
	return ""
}

// reportError prints err and its remediation hint.
func reportError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Interrupted.")
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if h := hint(err); h != "" {
		fmt.Fprintln(w, h)
	}
}
