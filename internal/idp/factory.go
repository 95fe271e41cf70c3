package idp

import (
	"fmt"
	"net/http"

	"github.com/foliosite/siterelay/internal/config"
)

// NewProvider creates a Provider based on the DecapConfig. The returned
// provider's HTTP client is bounded by the configured exchange timeout.
func NewProvider(cfg config.DecapConfig) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.ExchangeTimeout}

	switch cfg.Provider {
	case config.ProviderGitHub, "":
		return NewGitHubProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Hostname,
			cfg.Scopes,
			httpClient,
		), nil

	case config.ProviderGitLab:
		return NewGitLabProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Hostname,
			cfg.Scopes,
			httpClient,
		), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
