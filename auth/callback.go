package auth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultCallbackPort is the loopback port registered as the OAuth redirect.
const DefaultCallbackPort = 8484

const callbackPath = "/callback"

// CallbackResult is what the authorization server redirected back with.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><body style="font-family: system-ui; text-align: center; padding: 50px;">
{{if .Error}}<h1>Authentication Failed</h1>
<p>Error: {{.Error}}</p>
<p>You can close this window.</p>
{{else}}<h1>Authentication Successful!</h1>
<p>You can close this window and return to the terminal.</p>
{{end}}</body></html>
`))

// CallbackListener is a short-lived local HTTP endpoint that captures one
// OAuth redirect.
type CallbackListener struct {
	server    *http.Server
	listeners []net.Listener
	port      int

	once   sync.Once
	result chan CallbackResult

	closeOnce sync.Once
}

// ListenCallback binds the loopback port and starts serving in the
// background. Port 0 picks a free port. A port already in use on 127.0.0.1
// yields a *BindError; the port is never changed silently.
//
// The redirect URI names localhost, which browsers may resolve to ::1, so the
// same port is also bound on the IPv6 loopback when the host has one.
func ListenCallback(port int) (*CallbackListener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}

	l := &CallbackListener{
		listeners: []net.Listener{ln},
		port:      ln.Addr().(*net.TCPAddr).Port,
		result:    make(chan CallbackResult, 1),
	}
	if ln6, err := net.Listen("tcp", net.JoinHostPort("::1", strconv.Itoa(l.port))); err == nil {
		l.listeners = append(l.listeners, ln6)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, l.handleCallback)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	for _, ln := range l.listeners {
		go func() {
			_ = l.server.Serve(ln)
		}()
	}
	return l, nil
}

// Port returns the bound port.
func (l *CallbackListener) Port() int { return l.port }

// RedirectURL returns the redirect URI to register with the authorization request.
func (l *CallbackListener) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", l.port, callbackPath)
}

// Await blocks until a callback arrives, the timeout elapses or ctx is
// cancelled. The listener is shut down before Await returns in every case.
func (l *CallbackListener) Await(ctx context.Context, timeout time.Duration) (CallbackResult, error) {
	defer l.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.result:
		return res, nil
	case <-timer.C:
		return CallbackResult{}, fmt.Errorf("%w after %s", ErrAuthTimeout, timeout)
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Close stops the server and releases the port.
func (l *CallbackListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			err = l.server.Close()
		}
	})
	return err
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := CallbackResult{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// Neither a code nor an error: answer the browser but keep waiting.
	if res.Error == "" && res.Code == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = callbackPage.Execute(w, CallbackResult{Error: "missing authorization code"})
		return
	}
	if res.Error != "" {
		res.Code, res.State = "", ""
	}

	w.WriteHeader(http.StatusOK)
	_ = callbackPage.Execute(w, res)

	l.once.Do(func() {
		l.result <- res
	})
}
