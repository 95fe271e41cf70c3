package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// stateEntropyBytes is the number of random bytes behind every state nonce.
const stateEntropyBytes = 32

// GenerateSecureToken creates a cryptographically secure random token.
// Returns a base64 URL-encoded string without padding so it can travel in
// query strings and cookie values unescaped.
func GenerateSecureToken() (string, error) {
	b := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Fingerprint returns a short, non-reversible identifier for a sensitive value
// so log lines can correlate requests without carrying the value itself.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:4])
}
