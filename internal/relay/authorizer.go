package relay

import (
	"github.com/foliosite/siterelay/internal/crypto"
	"github.com/foliosite/siterelay/internal/idp"
	"github.com/foliosite/siterelay/internal/log"
)

// Authorization is the outcome of starting one OAuth attempt
type Authorization struct {
	State       string
	RedirectURL string
	Provider    string
	DryRun      bool
}

// Authorizer issues states and builds provider authorize URLs
type Authorizer struct {
	provider   idp.Provider
	issuer     *crypto.StateIssuer
	configured bool
}

// NewAuthorizer creates an authorizer. configured is false when the OAuth
// client credentials are absent, in which case every Begin fails closed.
func NewAuthorizer(provider idp.Provider, issuer *crypto.StateIssuer, configured bool) *Authorizer {
	return &Authorizer{
		provider:   provider,
		issuer:     issuer,
		configured: configured,
	}
}

// Begin issues a fresh state and returns the provider URL to redirect to.
// A dry run takes the same path; only the caller's response differs.
func (a *Authorizer) Begin(dryRun bool) (*Authorization, error) {
	if !a.configured {
		return nil, NewError(KindMissingConfiguration, "OAuth client credentials are not configured")
	}

	state, err := a.issuer.Issue()
	if err != nil {
		return nil, &Error{Kind: KindServerError, Message: "failed to generate state", Err: err}
	}

	log.LogDebugWithFields("relay", "Authorization started", map[string]any{
		"provider": a.provider.Type(),
		"state_fp": crypto.Fingerprint(state),
		"signed":   a.issuer.Signed(),
		"dry_run":  dryRun,
	})

	return &Authorization{
		State:       state,
		RedirectURL: a.provider.AuthURL(state),
		Provider:    a.provider.Type(),
		DryRun:      dryRun,
	}, nil
}
