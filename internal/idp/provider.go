package idp

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// Provider abstracts the identity provider behind the CMS git backend.
type Provider interface {
	// Type returns the provider identifier used in bridge messages ("github", "gitlab").
	Type() string

	// Host returns the provider host name, for diagnostics.
	Host() string

	// AuthURL generates the authorization URL carrying state.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for an access token.
	// Provider-reported failures surface as *oauth2.RetrieveError.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

// oauthProvider holds the parts shared by every authorization-code provider.
type oauthProvider struct {
	kind       string
	host       string
	config     oauth2.Config
	httpClient *http.Client
}

func (p *oauthProvider) Type() string {
	return p.kind
}

func (p *oauthProvider) Host() string {
	return p.host
}

func (p *oauthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *oauthProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return p.config.Exchange(ctx, code)
}
