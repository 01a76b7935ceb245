package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	refreshTokenBytes = 32
	sessionIDBytes    = 18
)

// Refresh tokens and session ids are opaque random strings; base64url
// keeps them header- and URL-safe without escaping.
func newOpaqueToken(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func NewRefreshToken() (string, error) {
	return newOpaqueToken(refreshTokenBytes)
}

func NewSessionID() (string, error) {
	return newOpaqueToken(sessionIDBytes)
}
