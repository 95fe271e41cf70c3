package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/foliosite/siterelay/internal/log"
	"github.com/foliosite/siterelay/internal/urlutil"
)

// secretFields lists, per section, the fields that must be env references
var secretFields = map[string][]string{
	"decap":   {"clientSecret", "stateSecret"},
	"webhook": {"secret"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != ConfigVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := Finalize(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Finalize applies defaults, validates, and logs soft warnings
func Finalize(config *Config) error {
	if err := ApplyDefaults(config); err != nil {
		return fmt.Errorf("applying defaults: %w", err)
	}
	if err := ValidateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	for _, warn := range Warnings(config) {
		log.LogWarnWithFields("config", warn.Message, map[string]any{
			"path": warn.Path,
		})
	}
	return nil
}

// validateRawConfig rejects secrets written inline instead of as env references
func validateRawConfig(rawConfig map[string]any) error {
	for section, fields := range secretFields {
		sectionMap, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			if err := validateEnvVarReference(sectionMap[field], section+"."+field); err != nil {
				return fmt.Errorf("%s", err.Message)
			}
		}
	}
	return nil
}

// ApplyDefaults fills in every field left empty
func ApplyDefaults(config *Config) error {
	if config.Version == "" {
		config.Version = ConfigVersion
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}
	if err := normalizeOrigins(&config.Server); err != nil {
		return err
	}
	if config.Server.RateLimit.RequestsPerMinute == 0 {
		config.Server.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if config.Server.RateLimit.Burst == 0 {
		config.Server.RateLimit.Burst = DefaultBurst
	}

	if d := config.Decap; d != nil {
		if d.Provider == "" {
			d.Provider = ProviderGitHub
		}
		if len(d.Scopes) == 0 {
			d.Scopes = defaultScopes(d.Provider)
		}
		if d.StateTTL == 0 {
			d.StateTTL = DefaultStateTTL
		}
		if d.ExchangeTimeout == 0 {
			d.ExchangeTimeout = DefaultExchangeTimeout
		}
		if d.Storage == "" {
			d.Storage = StorageMemory
		}
		if d.Storage == StorageFirestore && d.FirestoreCollection == "" {
			d.FirestoreCollection = DefaultFirestoreCollection
		}
		if d.RedirectURI == "" && config.Server.BaseURL != "" {
			redirect, err := urlutil.JoinPath(config.Server.BaseURL, DecapBasePath, "callback")
			if err != nil {
				return fmt.Errorf("building redirect URI: %w", err)
			}
			d.RedirectURI = redirect
		}
	}

	if w := config.Webhook; w != nil {
		if w.Path == "" {
			w.Path = DefaultWebhookPath
		}
		if w.MaxBodyBytes == 0 {
			w.MaxBodyBytes = DefaultWebhookMaxBodyBytes
		}
	}
	return nil
}

// normalizeOrigins reduces each allowed origin to scheme://host. With no
// origins listed, the site's own origin is the only one trusted.
func normalizeOrigins(server *ServerConfig) error {
	origins := make([]string, 0, len(server.AllowedOrigins))
	for _, raw := range server.AllowedOrigins {
		origin, err := urlutil.Origin(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("server.allowedOrigins: %w", err)
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 && server.BaseURL != "" {
		if origin, err := urlutil.Origin(server.BaseURL); err == nil {
			origins = append(origins, origin)
		}
	}
	server.AllowedOrigins = origins
	return nil
}

func defaultScopes(provider string) []string {
	if provider == ProviderGitLab {
		return []string{"api"}
	}
	return []string{"repo", "user"}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	base, err := url.Parse(config.Server.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("server.baseURL must be an absolute URL")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if config.Server.RateLimit.RequestsPerMinute < 0 || config.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rateLimit values cannot be negative")
	}

	if config.Decap == nil && config.Webhook == nil {
		return fmt.Errorf("at least one of decap or webhook must be configured")
	}

	if d := config.Decap; d != nil {
		if err := validateDecapConfig(d); err != nil {
			return fmt.Errorf("decap config: %w", err)
		}
	}

	if w := config.Webhook; w != nil {
		if !strings.HasPrefix(w.Path, "/") {
			return fmt.Errorf("webhook.path must start with /")
		}
		if strings.HasPrefix(w.Path, DecapBasePath+"/") {
			return fmt.Errorf("webhook.path cannot live under %s", DecapBasePath)
		}
		if w.MaxBodyBytes < 0 {
			return fmt.Errorf("webhook.maxBodyBytes cannot be negative")
		}
	}

	return nil
}

func validateDecapConfig(d *DecapConfig) error {
	switch d.Provider {
	case ProviderGitHub, ProviderGitLab:
	default:
		return fmt.Errorf("unknown provider: %s", d.Provider)
	}
	if d.Hostname != "" && strings.Contains(d.Hostname, "/") {
		return fmt.Errorf("hostname must be a bare host name, got %q", d.Hostname)
	}
	if d.StateSecret != "" && len(d.StateSecret) < 32 {
		return fmt.Errorf("stateSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(d.StateSecret))
	}
	if d.StateTTL <= 0 || d.StateTTL > time.Hour {
		return fmt.Errorf("stateTtl must be between 0 and 1h, got %s", d.StateTTL)
	}
	if d.ExchangeTimeout <= 0 {
		return fmt.Errorf("exchangeTimeout must be positive")
	}
	switch d.Storage {
	case StorageMemory:
	case StorageFirestore:
		if d.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage: %s", d.Storage)
	}
	return nil
}

// Warnings reports settings that are legal but weaken or disable a flow
func Warnings(config *Config) []ValidationError {
	var warnings []ValidationError

	if d := config.Decap; d != nil {
		if d.ClientID == "" {
			warnings = append(warnings, ValidationError{Path: "decap.clientId", Message: "OAuth client id is empty; authorization requests will fail with missing-configuration"})
		}
		if d.ClientSecret == "" {
			warnings = append(warnings, ValidationError{Path: "decap.clientSecret", Message: "OAuth client secret is empty; authorization requests will fail with missing-configuration"})
		}
		if d.StateSecret == "" {
			warnings = append(warnings, ValidationError{Path: "decap.stateSecret", Message: "state signing disabled; states are bound by cookie only"})
		}
	}

	if w := config.Webhook; w != nil && w.Secret == "" {
		warnings = append(warnings, ValidationError{Path: "webhook.secret", Message: "webhook secret is empty; every delivery will be rejected"})
	}

	return warnings
}
