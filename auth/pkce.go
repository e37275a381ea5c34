package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// verifierBytes encodes to a 96 character verifier, inside RFC 7636's
	// 43..128 range.
	verifierBytes = 72
	stateBytes    = 32
)

// PKCE holds the per-attempt proof key and anti-CSRF state. It is never persisted.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

// NewPKCE generates a fresh verifier, its S256 challenge and a random state.
func NewPKCE() PKCE {
	verifier := randomURLSafe(verifierBytes)
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		State:     randomURLSafe(stateBytes),
	}
}

// randomURLSafe returns n random bytes as unpadded base64url. A broken
// system random source is unrecoverable, so it panics.
func randomURLSafe(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
