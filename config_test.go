package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/auth"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{auth.ConfigDirEnv, envClientID, envCallbackPort, envAPIURL, envAuthURL, envDebug} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	var warn bytes.Buffer
	cfg, err := loadConfig(rootFlags{}, &warn)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.APIURL != api.DefaultBaseURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, api.DefaultBaseURL)
	}
	if cfg.AuthURL != auth.DefaultEndpoints.AuthorizeURL {
		t.Errorf("AuthURL = %q, want %q", cfg.AuthURL, auth.DefaultEndpoints.AuthorizeURL)
	}
	if cfg.CallbackPort != auth.DefaultCallbackPort {
		t.Errorf("CallbackPort = %d, want %d", cfg.CallbackPort, auth.DefaultCallbackPort)
	}
	if cfg.ConfigDir == "" {
		t.Error("ConfigDir is empty")
	}
	if cfg.Verbose {
		t.Error("Verbose = true, want false")
	}
	if warn.Len() != 0 {
		t.Errorf("unexpected warning: %q", warn.String())
	}
}

func TestLoadConfig_FlagOverridesEnv(t *testing.T) {
	clearEnv(t)
	envDir := t.TempDir()
	flagDir := filepath.Join(t.TempDir(), "flag")
	t.Setenv(auth.ConfigDirEnv, envDir)
	t.Setenv(envAPIURL, "https://env.example.com")
	t.Setenv(envCallbackPort, "9191")
	t.Setenv(envClientID, "  dub_app_env  ")
	t.Setenv(envDebug, "true")

	cfg, err := loadConfig(rootFlags{configDir: flagDir, apiURL: "https://flag.example.com"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.ConfigDir != flagDir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, flagDir)
	}
	if cfg.APIURL != "https://flag.example.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.CallbackPort != 9191 {
		t.Errorf("CallbackPort = %d, want 9191", cfg.CallbackPort)
	}
	if cfg.ClientID != "dub_app_env" {
		t.Errorf("ClientID = %q, want dub_app_env", cfg.ClientID)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true from DUBCO_DEBUG")
	}

	eps := cfg.Endpoints()
	if eps.TokenURL != "https://flag.example.com/oauth/token" {
		t.Errorf("TokenURL = %q", eps.TokenURL)
	}
	if eps.UserInfoURL != "https://flag.example.com/oauth/userinfo" {
		t.Errorf("UserInfoURL = %q", eps.UserInfoURL)
	}
}

func TestLoadConfig_HTTPWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(auth.ConfigDirEnv, t.TempDir())
	t.Setenv(envAPIURL, "http://localhost:3000")

	var warn bytes.Buffer
	if _, err := loadConfig(rootFlags{}, &warn); err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if !strings.Contains(warn.String(), "DUBCO_API_URL uses HTTP instead of HTTPS") {
		t.Errorf("warning = %q", warn.String())
	}
}

func TestLoadConfig_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad api url", map[string]string{envAPIURL: "ftp://api.example.com"}, "invalid DUBCO_API_URL"},
		{"bad auth url", map[string]string{envAuthURL: "https://"}, "invalid DUBCO_AUTH_URL"},
		{"port not a number", map[string]string{envCallbackPort: "http"}, "invalid DUBCO_CALLBACK_PORT"},
		{"port out of range", map[string]string{envCallbackPort: "0"}, "invalid DUBCO_CALLBACK_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(auth.ConfigDirEnv, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(rootFlags{}, &bytes.Buffer{})
			if err == nil {
				t.Fatal("loadConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
			if got := exitCode(err); got != exitInput {
				t.Errorf("exitCode = %d, want %d", got, exitInput)
			}
		})
	}
}

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://api.dub.co", false},
		{"http://localhost:8888", false},
		{"https://api.dub.co/v1/", false},
		{"", true},
		{"api.dub.co", true},
		{"ftp://api.dub.co", true},
		{"https://", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateServerURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateServerURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	if port, err := parsePort(" 8484 "); err != nil || port != 8484 {
		t.Errorf("parsePort(8484) = %d, %v", port, err)
	}
	for _, bad := range []string{"", "abc", "0", "65536", "-1"} {
		if _, err := parsePort(bad); err == nil {
			t.Errorf("parsePort(%q) error = nil", bad)
		}
	}
	if err := checkPort(65535); err != nil {
		t.Errorf("checkPort(65535) error = %v", err)
	}
	if err := checkPort(70000); err == nil {
		t.Error("checkPort(70000) error = nil")
	}
}
