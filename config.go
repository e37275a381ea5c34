package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/auth"
)

// Environment variables read at startup. A .env file in the working
// directory is loaded first and never overrides the real environment.
const (
	envClientID     = "DUBCO_CLIENT_ID"
	envCallbackPort = "DUBCO_CALLBACK_PORT"
	envAPIURL       = "DUBCO_API_URL"
	envAuthURL      = "DUBCO_AUTH_URL"
	envDebug        = "DUBCO_DEBUG"
)

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	configDir string
	apiURL    string
	verbose   bool
}

// config is the resolved configuration for one invocation.
type config struct {
	ConfigDir    string
	ClientID     string // per-invocation override, never persisted
	CallbackPort int
	APIURL       string
	AuthURL      string
	Verbose      bool
}

// Endpoints returns the OAuth endpoints. The token and userinfo endpoints
// live on the API host.
func (c *config) Endpoints() auth.Endpoints {
	base := strings.TrimRight(c.APIURL, "/")
	return auth.Endpoints{
		AuthorizeURL: c.AuthURL,
		TokenURL:     base + "/oauth/token",
		UserInfoURL:  base + "/oauth/userinfo",
	}
}

// loadConfig resolves the configuration with priority flag > env > default.
// Plain-HTTP URLs are accepted but produce a warning on warn.
func loadConfig(flags rootFlags, warn io.Writer) (*config, error) {
	cfg := &config{
		ConfigDir: getConfig(flags.configDir, auth.ConfigDirEnv, ""),
		ClientID:  strings.TrimSpace(getEnv(envClientID, "")),
		APIURL:    getConfig(flags.apiURL, envAPIURL, api.DefaultBaseURL),
		AuthURL:   getEnv(envAuthURL, auth.DefaultEndpoints.AuthorizeURL),
		Verbose:   flags.verbose || envBool(envDebug),
	}

	if cfg.ConfigDir == "" {
		dir, err := auth.DefaultDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigDir = dir
	}

	port, err := parsePort(getEnv(envCallbackPort, strconv.Itoa(auth.DefaultCallbackPort)))
	if err != nil {
		return nil, invalidInput("invalid %s: %v", envCallbackPort, err)
	}
	cfg.CallbackPort = port

	for _, u := range []struct{ name, value string }{
		{envAPIURL, cfg.APIURL},
		{envAuthURL, cfg.AuthURL},
	} {
		if err := validateServerURL(u.value); err != nil {
			return nil, invalidInput("invalid %s: %v", u.name, err)
		}
		if strings.HasPrefix(strings.ToLower(u.value), "http://") {
			fmt.Fprintf(warn, "⚠️  WARNING: %s uses HTTP instead of HTTPS. Tokens will be transmitted in plaintext!\n", u.name)
		}
	}

	return cfg, nil
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port must be a number, got: %s", s)
	}
	return port, checkPort(port)
}

func checkPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// newLogger returns the diagnostic logger: warnings only unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
