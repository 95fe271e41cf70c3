package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable class of a relay or webhook failure
type Kind string

const (
	KindMissingConfiguration Kind = "missing-configuration"
	KindMissingState         Kind = "missing-state"
	KindBadState             Kind = "bad-state"
	KindMissingSignature     Kind = "missing-signature"
	KindBadSignature         Kind = "bad-signature"
	KindProviderError        Kind = "provider-error"
	KindNetworkError         Kind = "network-error"
	KindBadRequest           Kind = "bad-request"
	KindServerError          Kind = "server-error"
)

// Status returns the HTTP status a failure of this kind is reported with
func (k Kind) Status() int {
	switch k {
	case KindMissingConfiguration, KindServerError:
		return http.StatusInternalServerError
	case KindMissingState, KindMissingSignature, KindBadSignature:
		return http.StatusUnauthorized
	case KindBadState, KindProviderError, KindBadRequest:
		return http.StatusBadRequest
	case KindNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Provider errors keep the provider's own
// code and description untouched.
type Error struct {
	Kind                Kind
	Message             string
	ProviderCode        string
	ProviderDescription string
	Timeout             bool
	Err                 error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.ProviderCode != "" {
		msg += fmt.Sprintf(" (provider: %s)", e.ProviderCode)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for this error; timeouts reaching the
// provider are reported as 504.
func (e *Error) Status() int {
	if e.Kind == KindNetworkError && e.Timeout {
		return http.StatusGatewayTimeout
	}
	return e.Kind.Status()
}

// Reason returns the most specific machine-readable reason available
func (e *Error) Reason() string {
	if e.ProviderCode != "" {
		return e.ProviderCode
	}
	return string(e.Kind)
}

// NewError creates a classified error
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts a *Error from err, classifying anything else as server-error
func AsError(err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return &Error{Kind: KindServerError, Message: "internal error", Err: err}
}
