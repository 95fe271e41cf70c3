package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// siteEnv holds raw env values for env-only deployments where no config file
// is shipped next to the binary.
type siteEnv struct {
	Addr                string   `env:"SITERELAY_ADDR"`
	BaseURL             string   `env:"SITERELAY_BASE_URL"`
	AllowedOrigins      []string `env:"SITERELAY_ALLOWED_ORIGINS" envSeparator:","`
	RequestsPerMinute   int      `env:"SITERELAY_RATE_LIMIT_PER_MINUTE"`
	Burst               int      `env:"SITERELAY_RATE_LIMIT_BURST"`
	DisableDecap        bool     `env:"SITERELAY_DISABLE_DECAP"`
	DisableWebhook      bool     `env:"SITERELAY_DISABLE_WEBHOOK"`
	GCPProject          string   `env:"SITERELAY_GCP_PROJECT"`
	FirestoreDatabase   string   `env:"SITERELAY_FIRESTORE_DATABASE"`
	FirestoreCollection string   `env:"SITERELAY_FIRESTORE_COLLECTION"`
	Storage             string   `env:"SITERELAY_STORAGE"`

	Provider        string        `env:"DECAP_OAUTH_PROVIDER"`
	ClientID        string        `env:"DECAP_OAUTH_CLIENT_ID"`
	ClientSecret    string        `env:"DECAP_OAUTH_CLIENT_SECRET"`
	GitHubClientID  string        `env:"DECAP_GITHUB_CLIENT_ID"`
	GitHubSecret    string        `env:"DECAP_GITHUB_CLIENT_SECRET"`
	RedirectURI     string        `env:"DECAP_OAUTH_REDIRECT_URI"`
	Hostname        string        `env:"DECAP_OAUTH_HOSTNAME"`
	Scopes          []string      `env:"DECAP_OAUTH_SCOPES" envSeparator:","`
	StateSecret     string        `env:"DECAP_OAUTH_STATE_SECRET"`
	StateTTL        time.Duration `env:"DECAP_OAUTH_STATE_TTL"`
	ExchangeTimeout time.Duration `env:"DECAP_OAUTH_EXCHANGE_TIMEOUT"`

	WebhookSecret       string `env:"CAL_WEBHOOK_SECRET"`
	WebhookPath         string `env:"CAL_WEBHOOK_PATH"`
	WebhookMaxBodyBytes int64  `env:"CAL_WEBHOOK_MAX_BODY_BYTES"`
}

// LoadEnv builds the configuration from environment variables alone
func LoadEnv() (Config, error) {
	var e siteEnv
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	config := Config{
		Version: ConfigVersion,
		Server: ServerConfig{
			Addr:           e.Addr,
			BaseURL:        e.BaseURL,
			AllowedOrigins: e.AllowedOrigins,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: e.RequestsPerMinute,
				Burst:             e.Burst,
			},
		},
	}

	if !e.DisableDecap {
		config.Decap = &DecapConfig{
			Provider:            e.Provider,
			ClientID:            firstNonEmpty(e.ClientID, e.GitHubClientID),
			ClientSecret:        Secret(firstNonEmpty(e.ClientSecret, e.GitHubSecret)),
			RedirectURI:         e.RedirectURI,
			Hostname:            e.Hostname,
			Scopes:              e.Scopes,
			StateSecret:         Secret(e.StateSecret),
			StateTTL:            e.StateTTL,
			ExchangeTimeout:     e.ExchangeTimeout,
			Storage:             StorageKind(e.Storage),
			GCPProject:          e.GCPProject,
			FirestoreDatabase:   e.FirestoreDatabase,
			FirestoreCollection: e.FirestoreCollection,
		}
	}

	if !e.DisableWebhook {
		config.Webhook = &WebhookConfig{
			Secret:       Secret(e.WebhookSecret),
			Path:         e.WebhookPath,
			MaxBodyBytes: e.WebhookMaxBodyBytes,
		}
	}

	if err := Finalize(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// firstNonEmpty prefers the provider-neutral variable; the DECAP_GITHUB_*
// names remain accepted for every provider.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
