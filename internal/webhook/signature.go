package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Cal-Signature-256"

// Sign returns the hex-encoded HMAC-SHA256 of rawBody under secret
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHeader is the signature of rawBody under
// secret. rawBody must be the exact bytes received, before any parsing.
// Surrounding whitespace on the header is tolerated; case is not.
func Verify(rawBody []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return false
	}
	signature := strings.TrimSpace(signatureHeader)
	if signature == "" {
		return false
	}

	expected := Sign(rawBody, secret)
	// Lengths are public (always 64 for a well-formed signature), so this
	// early return leaks nothing about the expected value.
	if len(signature) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
