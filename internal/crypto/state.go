package crypto

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrStateMissing   = errors.New("state missing")
	ErrStateMismatch  = errors.New("state does not match issued value")
	ErrStateMalformed = errors.New("state malformed")
	ErrStateSignature = errors.New("state signature invalid")
	ErrStateExpired   = errors.New("state expired")
)

// StateIssuer issues and verifies OAuth state tokens bound to one
// authorization attempt. With a signing key, tokens have the form
// nonce.issuedAt.signature; without one they are the bare nonce and expiry is
// left to the cookie lifetime.
type StateIssuer struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewStateIssuer creates a state issuer. A nil or empty signingKey disables signing.
func NewStateIssuer(signingKey []byte, ttl time.Duration) *StateIssuer {
	return &StateIssuer{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Signed reports whether issued states carry an HMAC signature.
func (s *StateIssuer) Signed() bool {
	return len(s.signingKey) > 0
}

// TTL returns how long an issued state stays valid.
func (s *StateIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new state token
func (s *StateIssuer) Issue() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	if !s.Signed() {
		return nonce, nil
	}

	data := nonce + "." + strconv.FormatInt(s.now().Unix(), 10)
	return data + "." + SignData(data, s.signingKey), nil
}

// Verify checks the state presented on callback against the value stored in
// the state cookie. Equality is checked first so an attacker-chosen state is
// rejected before any signature work.
func (s *StateIssuer) Verify(presented, stored string) error {
	if presented == "" || stored == "" {
		return ErrStateMissing
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		return ErrStateMismatch
	}
	if !s.Signed() {
		return nil
	}

	issuedAt, err := s.verifySignature(presented)
	if err != nil {
		return err
	}
	if s.ttl > 0 && s.now().Sub(issuedAt) > s.ttl {
		return ErrStateExpired
	}
	return nil
}

// ExpiresAt returns when state stops being acceptable. For unsigned states
// the issue time is unknown, so the full TTL from now is assumed.
func (s *StateIssuer) ExpiresAt(state string) time.Time {
	if s.Signed() {
		if issuedAt, err := s.verifySignature(state); err == nil {
			return issuedAt.Add(s.ttl)
		}
	}
	return s.now().Add(s.ttl)
}

func (s *StateIssuer) verifySignature(state string) (time.Time, error) {
	parts := strings.SplitN(state, ".", 3)
	if len(parts) != 3 {
		return time.Time{}, ErrStateMalformed
	}

	data := parts[0] + "." + parts[1]
	if !ValidateSignedData(data, parts[2], s.signingKey) {
		return time.Time{}, ErrStateSignature
	}

	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, ErrStateMalformed
	}
	return time.Unix(unix, 0).UTC(), nil
}
