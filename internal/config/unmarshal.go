package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for DecapConfig
func (d *DecapConfig) UnmarshalJSON(data []byte) error {
	type rawDecap struct {
		Provider            string          `json:"provider"`
		ClientID            json.RawMessage `json:"clientId"`
		ClientSecret        json.RawMessage `json:"clientSecret"`
		RedirectURI         json.RawMessage `json:"redirectUri"`
		Hostname            string          `json:"hostname"`
		Scopes              []string        `json:"scopes"`
		StateSecret         json.RawMessage `json:"stateSecret"`
		StateTTL            string          `json:"stateTtl"`
		ExchangeTimeout     string          `json:"exchangeTimeout"`
		Storage             StorageKind     `json:"storage"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}

	var raw rawDecap
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Provider = raw.Provider
	d.Hostname = raw.Hostname
	d.Scopes = raw.Scopes
	d.Storage = raw.Storage
	d.FirestoreDatabase = raw.FirestoreDatabase
	d.FirestoreCollection = raw.FirestoreCollection

	var err error
	if d.StateTTL, err = parseDuration("stateTtl", raw.StateTTL); err != nil {
		return err
	}
	if d.ExchangeTimeout, err = parseDuration("exchangeTimeout", raw.ExchangeTimeout); err != nil {
		return err
	}

	if d.ClientID, err = parseOptionalValue(raw.ClientID); err != nil {
		return fmt.Errorf("parsing clientId: %w", err)
	}

	clientSecret, err := parseOptionalValue(raw.ClientSecret)
	if err != nil {
		return fmt.Errorf("parsing clientSecret: %w", err)
	}
	d.ClientSecret = Secret(clientSecret)

	stateSecret, err := parseOptionalValue(raw.StateSecret)
	if err != nil {
		return fmt.Errorf("parsing stateSecret: %w", err)
	}
	d.StateSecret = Secret(stateSecret)

	if d.RedirectURI, err = ParseConfigValue(raw.RedirectURI); err != nil {
		return fmt.Errorf("parsing redirectUri: %w", err)
	}
	if d.GCPProject, err = ParseConfigValue(raw.GCPProject); err != nil {
		return fmt.Errorf("parsing gcpProject: %w", err)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for WebhookConfig
func (w *WebhookConfig) UnmarshalJSON(data []byte) error {
	type rawWebhook struct {
		Secret       json.RawMessage `json:"secret"`
		Path         string          `json:"path"`
		MaxBodyBytes int64           `json:"maxBodyBytes"`
	}

	var raw rawWebhook
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	secret, err := parseOptionalValue(raw.Secret)
	if err != nil {
		return fmt.Errorf("parsing secret: %w", err)
	}

	w.Secret = Secret(secret)
	w.Path = raw.Path
	w.MaxBodyBytes = raw.MaxBodyBytes
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig so the base
// URL and listen address can come from the environment. An unset addr
// variable falls back to the default address.
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		RateLimit      RateLimitConfig `json:"rateLimit"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	baseURL, err := ParseConfigValue(raw.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing baseURL: %w", err)
	}
	addr, err := parseOptionalValue(raw.Addr)
	if err != nil {
		return fmt.Errorf("parsing addr: %w", err)
	}

	s.Addr = addr
	s.BaseURL = baseURL
	s.AllowedOrigins = raw.AllowedOrigins
	s.RateLimit = raw.RateLimit
	return nil
}
