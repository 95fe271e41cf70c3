package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/foliosite/siterelay/internal/crypto"
	"github.com/foliosite/siterelay/internal/idp"
	"github.com/foliosite/siterelay/internal/log"
	"github.com/foliosite/siterelay/internal/storage"
	"golang.org/x/oauth2"
)

// ExchangeRequest carries what the bridge page posts plus the state cookie
type ExchangeRequest struct {
	Code        string
	State       string
	CookieState string
}

// Result is a successful code-for-token exchange
type Result struct {
	Provider  string
	Token     string
	TokenType string
	Scope     string
}

// Exchanger validates state and performs the code-for-token exchange
type Exchanger struct {
	provider   idp.Provider
	issuer     *crypto.StateIssuer
	store      storage.StateStore
	timeout    time.Duration
	configured bool
}

// NewExchanger creates an exchanger; see NewAuthorizer for configured
func NewExchanger(provider idp.Provider, issuer *crypto.StateIssuer, store storage.StateStore, timeout time.Duration, configured bool) *Exchanger {
	return &Exchanger{
		provider:   provider,
		issuer:     issuer,
		store:      store,
		timeout:    timeout,
		configured: configured,
	}
}

// Provider returns the identity provider type this exchanger talks to
func (e *Exchanger) Provider() string {
	return e.provider.Type()
}

// Exchange verifies the presented state against the cookie, consumes it,
// and only then contacts the provider. There is no retry: any failure
// requires a new authorization attempt.
func (e *Exchanger) Exchange(ctx context.Context, req ExchangeRequest) (*Result, error) {
	if !e.configured {
		return nil, NewError(KindMissingConfiguration, "OAuth client credentials are not configured")
	}

	if err := e.issuer.Verify(req.State, req.CookieState); err != nil {
		return nil, stateError(err)
	}

	if req.Code == "" {
		return nil, NewError(KindBadRequest, "authorization code is missing")
	}

	fresh, err := e.store.Consume(ctx, req.State, e.issuer.ExpiresAt(req.State))
	if err != nil {
		return nil, &Error{Kind: KindServerError, Message: "failed to record state", Err: err}
	}
	if !fresh {
		log.LogWarnWithFields("relay", "Replayed state rejected", map[string]any{
			"state_fp": crypto.Fingerprint(req.State),
		})
		return nil, NewError(KindBadState, "state has already been used")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	token, err := e.provider.ExchangeCode(exchangeCtx, req.Code)
	if err != nil {
		relayErr := classifyExchangeError(err)
		log.LogWarnWithFields("relay", "Token exchange failed", map[string]any{
			"provider":    e.provider.Type(),
			"kind":        string(relayErr.Kind),
			"reason":      relayErr.Reason(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, relayErr
	}
	if token.AccessToken == "" {
		return nil, NewError(KindProviderError, "provider returned no access token")
	}

	log.LogInfoWithFields("relay", "Token exchange succeeded", map[string]any{
		"provider":    e.provider.Type(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	result := &Result{
		Provider:  e.provider.Type(),
		Token:     token.AccessToken,
		TokenType: token.TokenType,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		result.Scope = scope
	}
	return result, nil
}

func stateError(err error) *Error {
	switch {
	case errors.Is(err, crypto.ErrStateMissing):
		return &Error{Kind: KindMissingState, Message: "state is missing or the attempt expired; restart sign-in", Err: err}
	case errors.Is(err, crypto.ErrStateExpired):
		return &Error{Kind: KindBadState, Message: "state expired; restart sign-in", Err: err}
	default:
		return &Error{Kind: KindBadState, Message: "state does not match this sign-in attempt", Err: err}
	}
}

// classifyExchangeError separates what the provider said from failures to
// reach it at all.
func classifyExchangeError(err error) *Error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		relayErr := &Error{
			Kind:                KindProviderError,
			ProviderCode:        retrieveErr.ErrorCode,
			ProviderDescription: retrieveErr.ErrorDescription,
			Err:                 err,
		}
		switch {
		case retrieveErr.ErrorDescription != "":
			relayErr.Message = retrieveErr.ErrorDescription
		case retrieveErr.ErrorCode != "":
			relayErr.Message = retrieveErr.ErrorCode
		case retrieveErr.Response != nil:
			relayErr.Message = fmt.Sprintf("token endpoint returned status %d", retrieveErr.Response.StatusCode)
		default:
			relayErr.Message = "token endpoint rejected the request"
		}
		return relayErr
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &Error{Kind: KindNetworkError, Message: "timed out contacting the identity provider", Timeout: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetworkError, Message: "request cancelled", Err: err}
	}
	if strings.HasPrefix(err.Error(), "oauth2: server response missing access_token") {
		return &Error{Kind: KindProviderError, Message: "provider returned no access token", Err: err}
	}
	return &Error{Kind: KindNetworkError, Message: "could not reach the identity provider", Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
