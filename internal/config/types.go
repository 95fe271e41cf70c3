package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ConfigVersion is the only config file version this build understands
const ConfigVersion = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where consumed OAuth states are recorded
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// Supported OAuth providers for the CMS backend
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// Defaults applied when a field is left empty
const (
	DefaultAddr                = ":8080"
	DefaultStateTTL            = 10 * time.Minute
	DefaultExchangeTimeout     = 8 * time.Second
	DefaultWebhookPath         = "/api/webhooks/cal"
	DefaultWebhookMaxBodyBytes = 1 << 20
	DefaultRequestsPerMinute   = 30
	DefaultBurst               = 10
	DefaultFirestoreCollection = "siterelay_oauth_states"
	DecapBasePath              = "/api/decap"
)

// RateLimitConfig bounds requests per client on the relay and webhook routes
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute,omitempty"`
	Burst             int `json:"burst,omitempty"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr           string          `json:"addr"`
	BaseURL        string          `json:"baseURL"`
	AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
	RateLimit      RateLimitConfig `json:"rateLimit,omitempty"`
}

// DecapConfig configures the OAuth relay used by the CMS admin panel.
// Client credentials may be empty at load time; the relay then fails closed
// on every authorization attempt instead of refusing to start.
type DecapConfig struct {
	Provider            string        `json:"provider"`
	ClientID            string        `json:"clientId"`
	ClientSecret        Secret        `json:"clientSecret"`
	RedirectURI         string        `json:"redirectUri"`
	Hostname            string        `json:"hostname,omitempty"` // self-hosted GitHub Enterprise / GitLab
	Scopes              []string      `json:"scopes,omitempty"`
	StateSecret         Secret        `json:"stateSecret"` // empty disables state signing
	StateTTL            time.Duration `json:"stateTtl"`
	ExchangeTimeout     time.Duration `json:"exchangeTimeout"`
	Storage             StorageKind   `json:"storage"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
}

// HasCredentials reports whether both OAuth client credentials are present
func (d *DecapConfig) HasCredentials() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

// WebhookConfig configures the booking webhook receiver
type WebhookConfig struct {
	Secret       Secret `json:"secret"`
	Path         string `json:"path"`
	MaxBodyBytes int64  `json:"maxBodyBytes,omitempty"`
}

// Config is built once at startup and passed by reference to every component
type Config struct {
	Version string         `json:"version"`
	Server  ServerConfig   `json:"server"`
	Decap   *DecapConfig   `json:"decap,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	value, envVar, err := parseValue(raw)
	if err != nil {
		return "", err
	}
	if envVar != "" && value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return value, nil
}

// parseOptionalValue is like ParseConfigValue but an unset variable yields "".
// Used for credentials whose absence is reported at request time.
func parseOptionalValue(raw json.RawMessage) (string, error) {
	value, _, err := parseValue(raw)
	return value, err
}

func parseValue(raw json.RawMessage) (value string, envVar string, err error) {
	if len(raw) == 0 {
		return "", "", nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, "", nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", "", fmt.Errorf("unknown reference type in config value")
	}

	value = os.Getenv(envVar)
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, envVar, nil
}
