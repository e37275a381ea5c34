package auth

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetch(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	status, body, err := fetch(url)
	require.NoError(t, err)
	return status, body
}

func TestCallbackListener_Code(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)
	assert.NotZero(t, l.Port())
	assert.Equal(t, "http://localhost:"+strconv.Itoa(l.Port())+"/callback", l.RedirectURL())

	done := make(chan struct{})
	go func() {
		defer close(done)
		status, body, err := fetch(l.RedirectURL() + "?code=abc&state=xyz")
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "Authentication Successful")
	}()

	res, err := l.Await(context.Background(), 5*time.Second)
	<-done
	require.NoError(t, err)
	assert.Equal(t, CallbackResult{Code: "abc", State: "xyz"}, res)
}

func TestCallbackListener_Error(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		status, body, err := fetch(l.RedirectURL() + "?error=access_denied&state=xyz")
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "access_denied")
	}()

	res, err := l.Await(context.Background(), 5*time.Second)
	<-done
	require.NoError(t, err)
	assert.Equal(t, "access_denied", res.Error)
	assert.Empty(t, res.Code)
}

func TestCallbackListener_ErrorIsEscaped(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)
	defer l.Close()

	_, body := get(t, l.RedirectURL()+"?error=%3Cscript%3E")
	assert.NotContains(t, body, "<script>")
}

func TestCallbackListener_OtherPathIs404(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)

	status, _ := get(t, "http://127.0.0.1:"+strconv.Itoa(l.Port())+"/favicon.ico")
	assert.Equal(t, http.StatusNotFound, status)

	_, err = l.Await(context.Background(), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrAuthTimeout)
}

func TestCallbackListener_MalformedKeepsWaiting(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)

	status, body := get(t, l.RedirectURL()+"?state=only")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Authentication Failed")

	go func() {
		_, _, _ = fetch(l.RedirectURL() + "?code=late&state=s")
	}()

	res, err := l.Await(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", res.Code)
}

func TestCallbackListener_OnlyFirstResultCounts(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)

	get(t, l.RedirectURL()+"?code=first&state=s")
	get(t, l.RedirectURL()+"?code=second&state=s")

	res, err := l.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", res.Code)
}

func TestCallbackListener_TimeoutReleasesPort(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)
	port := l.Port()

	_, err = l.Await(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrAuthTimeout)

	again, err := ListenCallback(port)
	require.NoError(t, err, "port should be free after Await returns")
	require.NoError(t, again.Close())
}

func TestCallbackListener_ContextCancelled(t *testing.T) {
	l, err := ListenCallback(0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Await(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListenCallback_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	_, err = ListenCallback(port)
	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, port, bindErr.Port)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestCallbackListener_IPv6Loopback(t *testing.T) {
	v6, err := net.Listen("tcp", "[::1]:0")
	if err != nil {
		t.Skip("no IPv6 loopback on this host")
	}
	v6.Close()

	l, err := ListenCallback(0)
	require.NoError(t, err)
	if len(l.listeners) < 2 {
		l.Close()
		t.Skip("port is taken on ::1")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		status, _, err := fetch("http://[::1]:" + strconv.Itoa(l.Port()) + "/callback?code=v6&state=s")
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
	}()

	res, err := l.Await(context.Background(), 5*time.Second)
	<-done
	require.NoError(t, err)
	assert.Equal(t, "v6", res.Code)
}
