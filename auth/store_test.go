package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLoadCredentials(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "dubco"))
	want := &Credentials{
		AccessToken:   "dub_access",
		RefreshToken:  "dub_refresh",
		ExpiresAt:     1700000000,
		WorkspaceID:   "ws_123",
		WorkspaceName: "Acme",
	}

	require.NoError(t, store.SaveCredentials(context.Background(), want))

	got, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(store.CredentialsPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"expires_at": 1700000000`)
	assert.Contains(t, string(data), `"workspace_name": "Acme"`)
}

func TestStore_CredentialsFileIsOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	store := NewStore(filepath.Join(t.TempDir(), "dubco"))
	require.NoError(t, store.SaveCredentials(context.Background(), &Credentials{AccessToken: "a"}))

	info, err := os.Stat(store.CredentialsPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(store.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestStore_OverwriteTightensPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	store := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.CredentialsPath(), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(store.CredentialsPath()+".tmp", []byte(`{}`), 0o644))

	require.NoError(t, store.SaveCredentials(context.Background(), &Credentials{AccessToken: "a"}))

	info, err := os.Stat(store.CredentialsPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_LoadCredentials_NotLoggedIn(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing"},
		{name: "corrupt", content: "{not json"},
		{name: "empty token", content: `{"access_token": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(t.TempDir())
			if tt.content != "" {
				require.NoError(t, os.WriteFile(store.CredentialsPath(), []byte(tt.content), 0o600))
			}
			_, err := store.LoadCredentials()
			assert.ErrorIs(t, err, ErrNotLoggedIn)
			assert.True(t, NeedsLogin(err))
		})
	}
}

func TestStore_ClearCredentials(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	// Clearing with nothing stored is fine, even before the dir exists.
	require.NoError(t, NewStore(filepath.Join(t.TempDir(), "absent")).ClearCredentials(ctx))
	require.NoError(t, store.ClearCredentials(ctx))

	require.NoError(t, store.SaveCredentials(ctx, &Credentials{AccessToken: "a"}))
	require.NoError(t, store.ClearCredentials(ctx))

	_, err := store.LoadCredentials()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = os.Stat(store.CredentialsPath() + ".lock")
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock file should be released")
}

func TestStore_ClientID(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	_, err := store.ClientID()
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, store.SetClientID(ctx, "dub_app_abc"))
	id, err := store.ClientID()
	require.NoError(t, err)
	assert.Equal(t, "dub_app_abc", id)

	// Settings live beside, not inside, the credentials record.
	_, err = store.LoadCredentials()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDefaultDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	got, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestDefaultDir_PlatformConfigDir(t *testing.T) {
	t.Setenv(ConfigDirEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on linux")
	}

	got, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg-test", "dubco"), got)
}

func TestCredentials_ExpiresIn(t *testing.T) {
	now := time.Unix(1000, 0)
	c := &Credentials{ExpiresAt: 1600}
	assert.Equal(t, 600*time.Second, c.ExpiresIn(now))
}
